package types

import "errors"

// MatchKind identifies what produced a match
type MatchKind string

const (
	KindFunction MatchKind = "function"
	KindClass    MatchKind = "class"
	KindImport   MatchKind = "import"
	KindText     MatchKind = "text"
	KindLog      MatchKind = "log"
	KindSemantic MatchKind = "semantic"
)

// Match is the common result shape shared by all indexes
type Match struct {
	// Location
	File   string
	Line   int // 1-based
	Column int // 0 when unknown

	// Identification
	Name string // declaration or module name, empty for text matches
	Kind MatchKind

	// Content
	Content       string
	ContextBefore []string
	ContextAfter  []string

	// Scoring
	Score float64 // similarity or relevance, 0 when not applicable

	// Extra per-index data (section, level, complexity, ...)
	Metadata map[string]string
}

// Meta returns a metadata value, or "" when absent
func (m *Match) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// SetMeta sets a metadata value, allocating the map on first use
func (m *Match) SetMeta(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// Validate checks the match invariants
func (m *Match) Validate() error {
	if m.File == "" {
		return errors.New("match file is required")
	}
	if m.Line < 1 {
		return errors.New("match line must be >= 1")
	}
	switch m.Kind {
	case KindFunction, KindClass, KindImport, KindText, KindLog, KindSemantic:
	default:
		return errors.New("invalid match kind")
	}
	return nil
}
