package constants

import (
	"strings"
)

// SignatureType is the raw signature code stored on a catalog procedure.
type SignatureType string

const (
	SignatureNone     SignatureType = "S/A"
	SignatureStandard SignatureType = "A"
	SignatureSpecial  SignatureType = "OPME"
)

// SignatureClass is the rendered classification of a resolved exam.
type SignatureClass string

const (
	ClassNone         SignatureClass = "NONE"
	ClassStandard     SignatureClass = "STANDARD"
	ClassSpecial      SignatureClass = "SPECIAL"
	ClassUnrecognized SignatureClass = "UNRECOGNIZED"
	ClassNotFound     SignatureClass = "not-found"
	ClassLookupError  SignatureClass = "lookup-error"
)

// Deadline labels shown to callers.
const (
	DeadlineNone      = "0 days"
	DeadlineStandard  = "5 days"
	DeadlineSpecial   = "10 days"
	DeadlineUndefined = "deadline undefined"
	DeadlineNotFound  = "not found in catalog"
	DeadlineLookupErr = "lookup error"
)

// Classify maps a raw catalog code to its class, deadline label and whether
// an explicit signature is required. Unknown and empty codes are unrecognized.
func Classify(code string) (SignatureClass, string, bool) {
	switch SignatureType(strings.TrimSpace(code)) {
	case SignatureNone:
		return ClassNone, DeadlineNone, false
	case SignatureStandard:
		return ClassStandard, DeadlineStandard, true
	case SignatureSpecial:
		return ClassSpecial, DeadlineSpecial, true
	default:
		return ClassUnrecognized, DeadlineUndefined, false
	}
}
