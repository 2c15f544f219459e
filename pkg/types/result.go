package types

import "time"

// SearchResult is the per-index response envelope.
//
// Truncated means more matches may have existed beyond the cap. Indexes
// that stop scheduling work once the cap is reached cannot know whether
// the unscanned remainder held matches, so Truncated is an upper-bound
// signal, not a guarantee of additional matches.
type SearchResult struct {
	Matches       []Match
	ExecutionTime time.Duration
	Truncated     bool
	Errors        []string
}

// AddError appends a non-fatal error message to the result
func (r *SearchResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Cap truncates Matches to max and records whether truncation happened.
// max <= 0 means unlimited.
func (r *SearchResult) Cap(max int) {
	if max <= 0 || len(r.Matches) <= max {
		return
	}
	r.Matches = r.Matches[:max]
	r.Truncated = true
}

// IndexKind names one member of the closed set of indexes the Dispatcher
// fans out to.
type IndexKind string

const (
	IndexCode       IndexKind = "code"
	IndexFile       IndexKind = "file"
	IndexDependency IndexKind = "dependency"
	IndexLog        IndexKind = "log"
	IndexSemantic   IndexKind = "semantic"
)

// AllIndexKinds lists every index kind in dispatch order
var AllIndexKinds = []IndexKind{IndexCode, IndexFile, IndexDependency, IndexLog, IndexSemantic}

// Valid reports whether k names a known index
func (k IndexKind) Valid() bool {
	switch k {
	case IndexCode, IndexFile, IndexDependency, IndexLog, IndexSemantic:
		return true
	}
	return false
}

// AggregateResult maps each selected index to its result. Indexes that
// failed entirely still appear, with an empty match list and a populated
// Errors field.
type AggregateResult struct {
	Results       map[IndexKind]*SearchResult
	ExecutionTime time.Duration
}

// TotalMatches returns the match count summed across indexes
func (a *AggregateResult) TotalMatches() int {
	total := 0
	for _, r := range a.Results {
		total += len(r.Matches)
	}
	return total
}
