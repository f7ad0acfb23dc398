package deadline

import (
	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

// Outcome tags how a single catalog lookup ended.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	LookupFailed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Resolution is the internal result for one exam line.
type Resolution struct {
	ExamName  string
	CoreName  string
	Outcome   Outcome
	Procedure *entity.Procedure // set when Outcome is Found
	Err       error             // set when Outcome is LookupFailed
}

// ExamResolution is the rendered, caller-facing result for one exam line.
type ExamResolution struct {
	ExamName          string                   `json:"exam"`
	SignatureTypeCode constants.SignatureClass `json:"signature_type"`
	Deadline          string                   `json:"deadline"`
	RequiresSignature bool                     `json:"requires_signature"`
	MatchedProcedure  string                   `json:"matched_procedure,omitempty"`
}

// Render maps the tagged outcome to the caller-facing labels.
func (r Resolution) Render() ExamResolution {
	out := ExamResolution{ExamName: r.ExamName}
	switch r.Outcome {
	case Found:
		out.SignatureTypeCode, out.Deadline, out.RequiresSignature = constants.Classify(r.Procedure.SignatureCode())
		out.MatchedProcedure = r.Procedure.Terminology
	case NotFound:
		out.SignatureTypeCode = constants.ClassNotFound
		out.Deadline = constants.DeadlineNotFound
	default:
		out.SignatureTypeCode = constants.ClassLookupError
		out.Deadline = constants.DeadlineLookupErr
	}
	return out
}

// RenderAll renders rs in order.
func RenderAll(rs []Resolution) []ExamResolution {
	out := make([]ExamResolution, len(rs))
	for i, r := range rs {
		out[i] = r.Render()
	}
	return out
}

// RequiresSignature is true iff any resolution requires one. Empty input is false.
func RequiresSignature(rs []ExamResolution) bool {
	for _, r := range rs {
		if r.RequiresSignature {
			return true
		}
	}
	return false
}
