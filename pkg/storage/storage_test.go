package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiraharvest/pkg/transform"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestJSONLSink(t *testing.T) {
	t.Run("appends in order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "corpus.jsonl")
		sink, err := OpenJSONL(path, true)
		require.NoError(t, err)

		for _, key := range []string{"DEMO-1", "DEMO-2", "DEMO-3"} {
			require.NoError(t, sink.Append(transform.Record{IssueKey: key, Project: "DEMO"}))
		}
		require.NoError(t, sink.Sync())
		require.NoError(t, sink.Close())

		assert.Equal(t, 3, sink.Appended())
		lines := readLines(t, path)
		require.Len(t, lines, 3)
		for i, key := range []string{"DEMO-1", "DEMO-2", "DEMO-3"} {
			var rec transform.Record
			require.NoError(t, json.Unmarshal([]byte(lines[i]), &rec))
			assert.Equal(t, key, rec.IssueKey)
		}
	})

	t.Run("never truncates existing content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(`{"issue_key":"OLD-1"}`+"\n"), 0644))

		sink, err := OpenJSONL(path, false)
		require.NoError(t, err)
		require.NoError(t, sink.Append(transform.Record{IssueKey: "NEW-1"}))
		require.NoError(t, sink.Close())

		lines := readLines(t, path)
		require.Len(t, lines, 2)
		assert.Equal(t, `{"issue_key":"OLD-1"}`, lines[0])
		assert.Contains(t, lines[1], `"issue_key":"NEW-1"`)
	})

	t.Run("terminates a torn last line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(`{"issue_key":"OK-1"}`+"\n"+`{"issue_ke`), 0644))

		sink, err := OpenJSONL(path, false)
		require.NoError(t, err)
		require.NoError(t, sink.Append(transform.Record{IssueKey: "OK-2"}))
		require.NoError(t, sink.Close())

		lines := readLines(t, path)
		require.Len(t, lines, 3)
		assert.Equal(t, `{"issue_ke`, lines[1])

		var rec transform.Record
		require.NoError(t, json.Unmarshal([]byte(lines[2]), &rec))
		assert.Equal(t, "OK-2", rec.IssueKey)
	})

	t.Run("keeps markup characters readable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.jsonl")
		sink, err := OpenJSONL(path, false)
		require.NoError(t, err)
		require.NoError(t, sink.Append(transform.Record{IssueKey: "DEMO-1", Title: "Use <br> & List<T>"}))
		require.NoError(t, sink.Close())

		lines := readLines(t, path)
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"title":"Use <br> & List<T>"`)
		assert.NotContains(t, lines[0], `\u003c`)
	})

	t.Run("fails after close", func(t *testing.T) {
		sink, err := OpenJSONL(filepath.Join(t.TempDir(), "corpus.jsonl"), true)
		require.NoError(t, err)
		require.NoError(t, sink.Close())
		require.NoError(t, sink.Close())

		assert.ErrorIs(t, sink.Append(transform.Record{IssueKey: "X-1"}), os.ErrClosed)
		assert.ErrorIs(t, sink.Sync(), os.ErrClosed)
	})
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()

	n, err := CountLines(filepath.Join(dir, "missing.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	path := filepath.Join(dir, "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\npartial"), 0644))
	n, err = CountLines(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
