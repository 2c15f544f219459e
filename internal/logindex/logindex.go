// Package logindex searches structured log files by level, time window,
// source and correlation id.
//
// Each source is a plain text file whose lines follow a tokenized layout:
// an ISO-8601 timestamp, a level token, an optional logger name, and a
// free-text message. Lines that do not start with a timestamp are treated
// as continuations of the previous record, so multi-line entries such as
// stack traces stay attached to the record that produced them.
package logindex

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dshills/codequery/internal/scan"
	"github.com/dshills/codequery/pkg/types"
)

// entryRE tokenizes the head of a log record. Group 1 is the timestamp,
// group 2 the level, group 3 an optional logger name, group 4 the message.
var entryRE = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)` +
		`\s+\[?(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|CRITICAL|FATAL)\]?` +
		`(?:\s+([\w./-]+)\s+[-:])?` +
		`\s+(.*)$`)

// timestampLayouts are tried in order when parsing the matched token.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000000000Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

// record is one parsed log entry, possibly spanning several lines.
type record struct {
	Timestamp time.Time
	Level     types.LogLevel
	Logger    string
	Message   string
	Line      int // line number of the record head, 1-based
}

// Index searches one or more log sources. Sources come from
// config.Sources when set, otherwise *.log files under config.Root.
type Index struct {
	logger *log.Logger
}

// New creates a log index
func New() *Index {
	return &Index{logger: log.New(io.Discard, "", 0)}
}

// SetLogger installs a logger for per-source diagnostics
func (idx *Index) SetLogger(logger *log.Logger) {
	if logger != nil {
		idx.logger = logger
	}
}

// Search parses each source and filters records by pattern, level
// threshold, time window and correlation id. Records keep their file
// order within a source, which for append-only logs is chronological.
func (idx *Index) Search(ctx context.Context, config types.SearchConfig) (*types.SearchResult, error) {
	start := time.Now()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	re, err := config.CompilePattern()
	if err != nil {
		return nil, err
	}

	sources := config.Sources
	var scanErrs []string
	if len(sources) == 0 {
		opts := scan.Options{
			Root:          config.Root,
			Include:       []string{"*.log"},
			IncludeHidden: config.IncludeHidden,
		}
		sources, scanErrs = scan.Files(opts)
	}

	result := &types.SearchResult{}
	result.Errors = append(result.Errors, scanErrs...)

	threshold := 0
	if config.Level != "" {
		threshold = config.Level.Severity()
	}

	for _, source := range sources {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if config.MaxResults > 0 && len(result.Matches) >= config.MaxResults {
			result.Truncated = true
			break
		}
		records, err := parseSource(source)
		if err != nil {
			result.AddError(err.Error())
			continue
		}
		for _, rec := range records {
			if !matchRecord(rec, config, re, threshold) {
				continue
			}
			if config.MaxResults > 0 && len(result.Matches) >= config.MaxResults {
				result.Truncated = true
				break
			}
			match := types.Match{
				File:    source,
				Line:    rec.Line,
				Name:    rec.Logger,
				Kind:    types.KindLog,
				Content: rec.Message,
			}
			match.SetMeta("level", string(rec.Level))
			match.SetMeta("timestamp", rec.Timestamp.Format(time.RFC3339Nano))
			match.SetMeta("source", filepath.Base(source))
			result.Matches = append(result.Matches, match)
		}
	}

	result.ExecutionTime = time.Since(start)
	return result, nil
}

func matchRecord(rec record, config types.SearchConfig, re *regexp.Regexp, threshold int) bool {
	if threshold > 0 && rec.Level.Severity() < threshold {
		return false
	}
	if !config.Since.IsZero() && rec.Timestamp.Before(config.Since) {
		return false
	}
	if !config.Until.IsZero() && rec.Timestamp.After(config.Until) {
		return false
	}
	if config.CorrelationID != "" && !strings.Contains(rec.Message, config.CorrelationID) {
		return false
	}
	return re.MatchString(rec.Message)
}

// parseSource reads a log file into records. Unparseable lines extend the
// previous record's message; leading unparseable lines are dropped.
func parseSource(path string) ([]record, error) {
	lines, err := scan.ReadLines(path)
	if err != nil {
		return nil, err
	}
	var records []record
	for i, line := range lines {
		groups := entryRE.FindStringSubmatch(line)
		if groups == nil {
			if len(records) > 0 && strings.TrimSpace(line) != "" {
				last := &records[len(records)-1]
				last.Message += "\n" + line
			}
			continue
		}
		records = append(records, record{
			Timestamp: parseTimestamp(groups[1]),
			Level:     normalizeLevel(groups[2]),
			Logger:    groups[3],
			Message:   groups[4],
			Line:      i + 1,
		})
	}
	return records, nil
}

func parseTimestamp(token string) time.Time {
	token = strings.Replace(token, ",", ".", 1)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, token); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// normalizeLevel maps wire-format level tokens onto the threshold scale
func normalizeLevel(token string) types.LogLevel {
	switch strings.ToUpper(token) {
	case "TRACE", "DEBUG":
		return types.LevelDebug
	case "INFO":
		return types.LevelInfo
	case "WARN", "WARNING":
		return types.LevelWarning
	case "ERROR":
		return types.LevelError
	case "CRITICAL", "FATAL":
		return types.LevelCritical
	default:
		return types.LogLevel(strings.ToLower(token))
	}
}
