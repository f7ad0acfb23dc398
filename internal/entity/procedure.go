package entity

import (
	"time"

	"github.com/google/uuid"
)

// Procedure is a catalog row for data transfer between layers.
// Terminology is the canonical name that exam lines are matched against.
type Procedure struct {
	ID                  uuid.UUID  `json:"id"`
	Code                string     `json:"code"`
	Terminology         string     `json:"terminology"`
	Correlation         *bool      `json:"correlation,omitempty"`
	ProcedureName       string     `json:"procedure,omitempty"`
	NormativeResolution string     `json:"normative_resolution,omitempty"`
	EffectiveFrom       *time.Time `json:"effective_from,omitempty"`
	OD                  string     `json:"od,omitempty"`
	AMB                 string     `json:"amb,omitempty"`
	HCO                 string     `json:"hco,omitempty"`
	HSO                 string     `json:"hso,omitempty"`
	PAC                 string     `json:"pac,omitempty"`
	DUT                 string     `json:"dut,omitempty"`
	Subgroup            string     `json:"subgroup,omitempty"`
	Group               string     `json:"group,omitempty"`
	Chapter             string     `json:"chapter,omitempty"`
	SignatureType       *string    `json:"signature_type"`
}

// SignatureCode returns the raw signature code, "" when absent.
func (p *Procedure) SignatureCode() string {
	if p == nil || p.SignatureType == nil {
		return ""
	}
	return *p.SignatureType
}
