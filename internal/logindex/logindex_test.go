package logindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codequery/pkg/types"
)

const sampleLog = `2024-03-10T08:00:01Z INFO auth.service - user alice logged in trace=abc123
2024-03-10T08:00:02Z DEBUG auth.service - token refresh scheduled
2024-03-10T08:01:15Z WARN db.pool - connection pool at 90%
2024-03-10T08:02:03Z ERROR db.pool - query failed trace=abc123
Traceback (most recent call last):
  File "db.py", line 42, in query
TimeoutError: connection timed out
2024-03-10T08:05:00Z CRITICAL kernel - out of memory
`

func writeLog(t *testing.T, root, name, content string) string {
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseSource(t *testing.T) {
	root := t.TempDir()
	path := writeLog(t, root, "app.log", sampleLog)

	records, err := parseSource(path)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, types.LevelInfo, records[0].Level)
	assert.Equal(t, "auth.service", records[0].Logger)
	assert.Equal(t, 1, records[0].Line)
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 1, 0, time.UTC), records[0].Timestamp)

	// The traceback lines fold into the failed query record.
	assert.Equal(t, 4, records[3].Line)
	assert.Contains(t, records[3].Message, "TimeoutError: connection timed out")

	assert.Equal(t, types.LevelCritical, records[4].Level)
}

func TestLeadingContinuationDropped(t *testing.T) {
	root := t.TempDir()
	path := writeLog(t, root, "app.log", "orphan line\n2024-03-10T08:00:01Z INFO app - started\n")

	records, err := parseSource(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "started", records[0].Message)
}

func TestLevelThreshold(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", sampleLog)

	config := types.NewSearchConfig(".*", root)
	config.Level = types.LevelError

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "error", result.Matches[0].Meta("level"))
	assert.Equal(t, "critical", result.Matches[1].Meta("level"))
}

func TestTimeWindow(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", sampleLog)

	config := types.NewSearchConfig(".*", root)
	config.Since = time.Date(2024, 3, 10, 8, 1, 0, 0, time.UTC)
	config.Until = time.Date(2024, 3, 10, 8, 3, 0, 0, time.UTC)

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, 3, result.Matches[0].Line)
	assert.Equal(t, 4, result.Matches[1].Line)
}

func TestCorrelationID(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", sampleLog)

	config := types.NewSearchConfig(".*", root)
	config.CorrelationID = "abc123"

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, 1, result.Matches[0].Line)
	assert.Equal(t, 4, result.Matches[1].Line)
}

func TestPatternFiltersMessage(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", sampleLog)

	config := types.NewSearchConfig("logged in", root)

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, types.KindLog, result.Matches[0].Kind)
	assert.Equal(t, "auth.service", result.Matches[0].Name)
}

func TestExplicitSources(t *testing.T) {
	root := t.TempDir()
	a := writeLog(t, root, "a.log", "2024-03-10T08:00:01Z INFO app - needle\n")
	writeLog(t, root, "b.log", "2024-03-10T08:00:02Z INFO app - needle\n")

	config := types.NewSearchConfig("needle", root)
	config.Sources = []string{a}

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, a, result.Matches[0].File)
}

func TestDiscoversLogFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", "2024-03-10T08:00:01Z INFO app - needle\n")
	writeLog(t, root, "notes.txt", "2024-03-10T08:00:01Z INFO app - needle\n")

	config := types.NewSearchConfig("needle", root)

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Contains(t, result.Matches[0].File, "app.log")
}

func TestMissingSourceRecordedNotFatal(t *testing.T) {
	root := t.TempDir()
	a := writeLog(t, root, "a.log", "2024-03-10T08:00:01Z INFO app - needle\n")

	config := types.NewSearchConfig("needle", root)
	config.Sources = []string{a, filepath.Join(root, "missing.log")}

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 1)
	assert.NotEmpty(t, result.Errors)
}

func TestChronologicalOrderPreserved(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", sampleLog)

	config := types.NewSearchConfig(".*", root)

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 5)
	var prev time.Time
	for _, m := range result.Matches {
		ts, err := time.Parse(time.RFC3339Nano, m.Meta("timestamp"))
		require.NoError(t, err)
		assert.False(t, ts.Before(prev))
		prev = ts
	}
}

func TestMaxResultsTruncates(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "app.log", sampleLog)

	config := types.NewSearchConfig(".*", root)
	config.MaxResults = 2

	result, err := New().Search(context.Background(), config)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 2)
	assert.True(t, result.Truncated)
}

func TestAlternateTimestampFormats(t *testing.T) {
	root := t.TempDir()
	content := "2024-03-10 08:00:01 INFO app - space separated\n" +
		"2024-03-10T08:00:02,500 WARN app - comma millis\n"
	writeLog(t, root, "app.log", content)

	records, err := parseSource(filepath.Join(root, "app.log"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Timestamp.IsZero())
	assert.Equal(t, 500*int(time.Millisecond), records[1].Timestamp.Nanosecond())
}
