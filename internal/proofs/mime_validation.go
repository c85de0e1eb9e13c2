package proofs

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// allowedProofTypes maps accepted image content types to their object extension.
var allowedProofTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// decodable lists the types whose header the image package can verify.
var decodable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// sniff returns the detected content type and extension of a proof, or ok=false when
// the bytes are not an accepted image. The declared filename and header are ignored.
func sniff(data []byte) (contentType, ext string, ok bool) {
	detected := mimetype.Detect(data)
	contentType = strings.ToLower(detected.String())
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	ext, ok = allowedProofTypes[contentType]
	if !ok {
		return contentType, "", false
	}
	if decodable[contentType] {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return contentType, "", false
		}
	}
	return contentType, ext, true
}
