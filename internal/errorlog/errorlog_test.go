package errorlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/last-minute-learner/reviewer-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []Entry
	for line := range strings.SplitSeq(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestLogger_Disabled(t *testing.T) {
	l, err := New(testutils.CreateTestLogger(), false, t.TempDir())
	require.NoError(t, err)
	assert.False(t, l.IsEnabled())

	l.Record(Entry{Stage: "generation", Error: "ignored"})
	assert.NoError(t, l.Close())

	var nilLogger *Logger
	nilLogger.Record(Entry{Stage: "generation"})
	assert.False(t, nilLogger.IsEnabled())
}

func TestLogger_Record(t *testing.T) {
	dir := t.TempDir()
	l, err := New(testutils.CreateTestLogger(), true, dir)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	l.Record(Entry{RequestID: "req-1", Transport: "http", Stage: "generation", Error: "quota exceeded", PromptChars: 12})

	entries := readEntries(t, l.FilePath())
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].RequestID)
	assert.Equal(t, "generation", entries[0].Stage)
	assert.NotEmpty(t, entries[0].Timestamp)
	assert.Equal(t, filepath.Join(dir, logFileName), l.FilePath())
}

func TestLogger_RotatesOldEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logFileName)

	old := Entry{Timestamp: time.Now().AddDate(0, 0, -(DefaultLogRetentionDays + 5)).Format(time.RFC3339), Stage: "extraction", Error: "old"}
	recent := Entry{Timestamp: time.Now().AddDate(0, 0, -1).Format(time.RFC3339), Stage: "generation", Error: "recent"}

	var lines []string
	for _, e := range []Entry{old, recent} {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		lines = append(lines, string(data))
	}
	lines = append(lines, "not json")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))

	l, err := New(testutils.CreateTestLogger(), true, dir)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, `"old"`)
	assert.Contains(t, content, `"recent"`)
	assert.Contains(t, content, "not json", "malformed lines are kept")
}
