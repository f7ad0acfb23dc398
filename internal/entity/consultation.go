package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Consultation is the persisted record of a processed document.
type Consultation struct {
	ID                uuid.UUID       `json:"id"`
	Protocol          string          `json:"protocol"`
	OriginalName      string          `json:"original_name"`
	RequiresSignature bool            `json:"requires_signature"`
	ExamCount         int             `json:"exam_count"`
	Result            json.RawMessage `json:"result"`
	CreatedAt         time.Time       `json:"created_at"`
}
