package waiter

import (
	"strings"
	"time"
)

// Patient is a registry entry used to prefill the order form by MRN.
type Patient struct {
	ID        int64     `json:"id"`
	MRN       string    `json:"mrn"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	DOB       string    `json:"dob"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeMRN upper-cases and trims an MRN the way the entry form does.
func NormalizeMRN(mrn string) string {
	return strings.ToUpper(strings.TrimSpace(mrn))
}

// MaskName hides most of a patient's name for the public board: the first
// two letters of the first name and the first three of the last name stay
// visible. Short names are shown as-is.
func MaskName(first, last string) string {
	return maskPart(first, 2) + " " + maskPart(last, 3)
}

func maskPart(s string, keep int) string {
	r := []rune(s)
	if len(r) <= keep {
		return s
	}
	return string(r[:keep]) + strings.Repeat("*", len(r)-keep)
}
