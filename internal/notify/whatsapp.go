package notify

import (
	"net/url"
	"strings"
)

// WhatsAppLink builds a click-to-chat link that opens a conversation with number
// prefilled with text.
func WhatsAppLink(number, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	return "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
