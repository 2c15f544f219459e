package types

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"time"
)

// SearchType narrows what a structural or dependency search looks for
type SearchType string

const (
	// CodeIndex search types
	SearchFunctions SearchType = "function"
	SearchClasses   SearchType = "class"
	SearchImports   SearchType = "import"
	SearchAll       SearchType = "all"

	// DependencyIndex search types
	SearchInstalled    SearchType = "installed"
	SearchRequirements SearchType = "requirements"
	SearchPyproject    SearchType = "pyproject"
	SearchDepImports   SearchType = "imports"
)

// LogLevel is a severity threshold for log searches
type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarning  LogLevel = "warning"
	LevelError    LogLevel = "error"
	LevelCritical LogLevel = "critical"
)

// Severity returns the numeric rank of a level for threshold comparison.
// Unknown levels rank below debug so they never pass a filter.
func (l LogLevel) Severity() int {
	switch l {
	case LevelDebug:
		return 1
	case LevelInfo:
		return 2
	case LevelWarning:
		return 3
	case LevelError:
		return 4
	case LevelCritical:
		return 5
	default:
		return 0
	}
}

// Default limits applied by NewSearchConfig
const (
	DefaultMaxResults   = 100
	DefaultContextLines = 2
	DefaultTimeout      = 30 * time.Second
)

// SearchConfig is an immutable per-call value object. It is passed by value
// into every index and never mutated after construction.
type SearchConfig struct {
	// Query
	Pattern    string // regex or literal, depending on index
	Root       string // filesystem root to search under
	SearchType SearchType

	// File selection
	Include        []string // doublestar globs, empty means all
	Exclude        []string
	IncludeHidden  bool
	MaxFileSize    int64 // bytes, 0 means no ceiling
	ModifiedAfter  time.Time
	ModifiedBefore time.Time

	// Matching
	CaseSensitive bool
	ExactMatch    bool // full-string equality, not substring
	WholeWord     bool
	ContextLines  int

	// Numeric post-filters (0 means unbounded)
	ComplexityMin int
	ComplexityMax int
	LinesMin      int
	LinesMax      int

	// Result shaping
	MaxResults int

	// Execution
	Parallel bool
	Workers  int // 0 means runtime.NumCPU()
	NoCache  bool
	Timeout  time.Duration

	// Semantic search
	SimilarityThreshold float64
	ExplainResults      bool

	// Log search
	Sources       []string // log file paths
	Level         LogLevel
	Since         time.Time
	Until         time.Time
	CorrelationID string
}

// NewSearchConfig returns a config with defaults filled in
func NewSearchConfig(pattern, root string) SearchConfig {
	return SearchConfig{
		Pattern:      pattern,
		Root:         root,
		SearchType:   SearchAll,
		ContextLines: DefaultContextLines,
		MaxResults:   DefaultMaxResults,
		Workers:      runtime.NumCPU(),
		Timeout:      DefaultTimeout,
	}
}

// EffectiveWorkers returns the worker count to use for this config
func (c SearchConfig) EffectiveWorkers() int {
	if !c.Parallel {
		return 1
	}
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// CompilePattern compiles the configured pattern according to the matching
// flags. ExactMatch anchors the expression; case-insensitivity is applied
// via the (?i) flag as the pattern is treated as a regular expression.
func (c SearchConfig) CompilePattern() (*regexp.Regexp, error) {
	pattern := c.Pattern
	if c.ExactMatch {
		pattern = "^(?:" + pattern + ")$"
	} else if c.WholeWord {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if !c.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// Validate checks the config before any work is scheduled. Configuration
// errors fail the whole query up front instead of surfacing mid-scan.
func (c SearchConfig) Validate() error {
	if c.Pattern == "" {
		return ErrEmptyPattern
	}
	if _, err := c.CompilePattern(); err != nil {
		return err
	}
	if err := c.ValidateRoot(); err != nil {
		return err
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("max results must be >= 0, got %d", c.MaxResults)
	}
	if c.ContextLines < 0 {
		return fmt.Errorf("context lines must be >= 0, got %d", c.ContextLines)
	}
	return nil
}

// ValidateRoot checks that the configured root exists and is a directory.
// An empty root is allowed; callers default it to the working directory.
func (c SearchConfig) ValidateRoot() error {
	if c.Root == "" {
		return nil
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRootNotFound, c.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, c.Root)
	}
	return nil
}
