package purchases

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

// kindProfile is the per-product behaviour plugged into the shared state machine.
type kindProfile struct {
	label string
	// newAccount allows bundling account registration with the purchase.
	newAccount bool
	// birthRequired makes date, time and place of birth mandatory.
	birthRequired bool
	// birthRequiredForAccount makes them mandatory only when registering;
	// they become the new account's birth details.
	birthRequiredForAccount bool
	// assetsExpire applies the catalog access window on approval.
	assetsExpire bool
}

var kindProfiles = map[enums.ProductKind]kindProfile{
	enums.ProductKindCourse: {
		label:                   "Course Enrollment",
		newAccount:              true,
		birthRequiredForAccount: true,
		assetsExpire:            true,
	},
	enums.ProductKindConsultation: {
		label:         "Consultation Booking",
		birthRequired: true,
	},
	enums.ProductKindEReport: {
		label:         "E-Report Order",
		birthRequired: true,
	},
}

func profileFor(kind enums.ProductKind) (kindProfile, bool) {
	p, ok := kindProfiles[kind]
	return p, ok
}

const (
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04"
	maxQuestionsLen = 2000
	maxPlaceLen     = 200
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// normalizeDetails trims the captured fields.
func (p kindProfile) normalizeDetails(d types.PurchaseDetails) types.PurchaseDetails {
	return types.PurchaseDetails{
		DateOfBirth: strings.TrimSpace(d.DateOfBirth),
		BirthTime:   strings.TrimSpace(d.BirthTime),
		BirthPlace:  strings.TrimSpace(d.BirthPlace),
		Questions:   strings.TrimSpace(d.Questions),
	}
}

// validateDetails returns field -> message for every invalid detail.
// registering is true when the purchase also creates an account.
func (p kindProfile) validateDetails(d types.PurchaseDetails, now time.Time, registering bool) map[string]string {
	problems := map[string]string{}
	if p.birthRequired || (registering && p.birthRequiredForAccount) {
		if d.DateOfBirth == "" {
			problems["dob"] = "date of birth is required"
		}
		if d.BirthTime == "" {
			problems["birthTime"] = "birth time is required"
		}
		if d.BirthPlace == "" {
			problems["birthPlace"] = "birth place is required"
		}
	}
	if d.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, d.DateOfBirth)
		switch {
		case err != nil:
			problems["dob"] = fmt.Sprintf("date of birth must use %s", "YYYY-MM-DD")
		case dob.After(now):
			problems["dob"] = "date of birth cannot be in the future"
		}
	}
	if d.BirthTime != "" && !clockPattern.MatchString(d.BirthTime) {
		problems["birthTime"] = "birth time must use HH:MM"
	}
	if len(d.BirthPlace) > maxPlaceLen {
		problems["birthPlace"] = fmt.Sprintf("birth place must be at most %d characters", maxPlaceLen)
	}
	if len(d.Questions) > maxQuestionsLen {
		problems["questions"] = fmt.Sprintf("questions must be at most %d characters", maxQuestionsLen)
	}
	return problems
}
