package pipeline

import (
	"time"

	"github.com/google/uuid"
)

const DefaultProtocolPrefix = "UNIAGENDE"

// ProtocolGenerator issues tracking codes shaped PREFIX-YYYYMMDD-XXXXXXXX.
// The date is the UTC calendar date; the suffix is random hex.
type ProtocolGenerator struct {
	prefix string
	now    func() time.Time
	newID  func() string
}

func NewProtocolGenerator(prefix string) *ProtocolGenerator {
	if prefix == "" {
		prefix = DefaultProtocolPrefix
	}
	return &ProtocolGenerator{prefix: prefix, now: time.Now, newID: uuid.NewString}
}

// WithClock replaces the clock, for tests and replays.
func (g *ProtocolGenerator) WithClock(now func() time.Time) *ProtocolGenerator {
	g.now = now
	return g
}

func (g *ProtocolGenerator) Next() string {
	return g.prefix + "-" + g.now().UTC().Format("20060102") + "-" + g.newID()[:8]
}
