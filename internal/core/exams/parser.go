// Package exams locates the requested-exams block in OCR text and splits it
// into candidate exam lines.
package exams

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultAnchor        = `Exames\s+Laboratoriais\s*`
	DefaultBoundary      = `\n\n[A-Z]{2,}`
	DefaultMinLineLength = 6
)

type Config struct {
	Anchor   string // start marker; the block begins where it ends
	Boundary string // end marker; not part of the block
	// Greedy ends the block at the last boundary instead of the nearest one.
	Greedy        bool
	MinLineLength int // in characters, after trimming
}

func DefaultConfig() Config {
	return Config{
		Anchor:        DefaultAnchor,
		Boundary:      DefaultBoundary,
		MinLineLength: DefaultMinLineLength,
	}
}

// Parser is stateless after construction and safe for concurrent use.
type Parser struct {
	anchor   *regexp.Regexp
	boundary *regexp.Regexp
	greedy   bool
	minLen   int
}

func NewParser(cfg Config) (*Parser, error) {
	if cfg.Anchor == "" {
		cfg.Anchor = DefaultAnchor
	}
	if cfg.Boundary == "" {
		cfg.Boundary = DefaultBoundary
	}
	if cfg.MinLineLength <= 0 {
		cfg.MinLineLength = DefaultMinLineLength
	}
	anchor, err := regexp.Compile(cfg.Anchor)
	if err != nil {
		return nil, fmt.Errorf("anchor pattern: %w", err)
	}
	boundary, err := regexp.Compile(cfg.Boundary)
	if err != nil {
		return nil, fmt.Errorf("boundary pattern: %w", err)
	}
	return &Parser{anchor: anchor, boundary: boundary, greedy: cfg.Greedy, minLen: cfg.MinLineLength}, nil
}

// Default returns a parser with the default patterns.
func Default() *Parser {
	p, err := NewParser(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return p
}

// Parse returns the exam lines in document order, duplicates included.
// Text without the anchor, or without a boundary after it, yields no exams.
func (p *Parser) Parse(text string) []string {
	exams := []string{}
	block, ok := p.block(strings.ReplaceAll(text, "\r\n", "\n"))
	if !ok {
		return exams
	}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, ")")
		if utf8.RuneCountInString(line) >= p.minLen {
			exams = append(exams, line)
		}
	}
	return exams
}

func (p *Parser) block(text string) (string, bool) {
	loc := p.anchor.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[1]:]

	end := -1
	if p.greedy {
		end = p.lastBoundary(rest)
	} else if b := p.boundary.FindStringIndex(rest); b != nil {
		end = b[0]
	}
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// lastBoundary returns the start of the last position where the boundary
// matches, overlapping candidates included.
func (p *Parser) lastBoundary(s string) int {
	last := -1
	for from := 0; from <= len(s); {
		b := p.boundary.FindStringIndex(s[from:])
		if b == nil {
			break
		}
		last = from + b[0]
		_, size := utf8.DecodeRuneInString(s[last:])
		if size == 0 {
			break
		}
		from = last + size
	}
	return last
}
