package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiraharvest/pkg/checkpoint"
	"jiraharvest/pkg/jira"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/retry"
	"jiraharvest/pkg/storage"
)

type pipeline struct {
	dir        string
	corpus     string
	checkpoint string
}

func newPipeline(t *testing.T) pipeline {
	dir := t.TempDir()
	return pipeline{
		dir:        dir,
		corpus:     filepath.Join(dir, "corpus.jsonl"),
		checkpoint: filepath.Join(dir, "checkpoint.json"),
	}
}

func (p pipeline) run(t *testing.T, serverURL string, sources ...string) *Report {
	t.Helper()
	client := jira.NewClient(jira.Options{
		BaseURL:  serverURL,
		PageSize: 2,
		Policy: &retry.Policy{
			MaxAttempts: 5,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
			RetryIf:     retry.DefaultRetryIf,
			Logger:      logger.NewNopLogger(),
		},
		Logger: logger.NewNopLogger(),
	})

	sink, err := storage.OpenJSONL(p.corpus, true)
	require.NoError(t, err)
	defer sink.Close()

	store := checkpoint.NewFileStore(p.checkpoint, logger.NewNopLogger())
	report, err := New(sources, client, sink, store, WithLogger(logger.NewNopLogger())).Run(context.Background())
	require.NoError(t, err)
	return report
}

func (p pipeline) offsets(t *testing.T) map[string]int {
	t.Helper()
	data, err := os.ReadFile(p.checkpoint)
	require.NoError(t, err)
	var out map[string]int
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func (p pipeline) lines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(p.corpus)
	require.NoError(t, err)
	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// demoServer serves DEMO-1..DEMO-n for project DEMO and answers 429 for
// anything else.
func demoServer(t *testing.T, n int, requests *int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		if !strings.Contains(r.URL.Query().Get("jql"), `"DEMO"`) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		issues := []map[string]interface{}{}
		for i := startAt; i < n && i < startAt+maxResults; i++ {
			issues = append(issues, map[string]interface{}{
				"key": fmt.Sprintf("DEMO-%d", i+1),
				"fields": map[string]interface{}{
					"summary":     fmt.Sprintf("Issue %d", i+1),
					"status":      map[string]interface{}{"name": "Open"},
					"description": "Line one\n*bold* text",
					"issuetype":   map[string]interface{}{"name": "Bug"},
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"startAt":    startAt,
			"maxResults": maxResults,
			"total":      n,
			"issues":     issues,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPipelineColdStart(t *testing.T) {
	var requests int32
	server := demoServer(t, 3, &requests)
	p := newPipeline(t)

	report := p.run(t, server.URL, "DEMO")

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, map[string]int{"DEMO": 3}, p.offsets(t))

	lines := p.lines(t)
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{
		"issue_key": "DEMO-1", "project": "DEMO", "title": "Issue 1", "status": "Open",
		"created_at": "", "description_text": "Line one bold text", "comments_text": "",
		"issue_type_label": "Bug"
	}`, lines[0])

	res, _ := report.Result("DEMO")
	assert.Equal(t, StateExhausted, res.State)
}

func TestPipelineRerunAppendsNothing(t *testing.T) {
	var requests int32
	server := demoServer(t, 3, &requests)
	p := newPipeline(t)

	p.run(t, server.URL, "DEMO")
	report := p.run(t, server.URL, "DEMO")

	assert.Len(t, p.lines(t), 3)
	assert.Equal(t, 0, report.Records())
	assert.Equal(t, map[string]int{"DEMO": 3}, p.offsets(t))
}

func TestPipelineRateLimitedSourceHalts(t *testing.T) {
	var requests int32
	server := demoServer(t, 3, &requests)
	p := newPipeline(t)
	require.NoError(t, os.WriteFile(p.checkpoint, []byte(`{"LIMITED": 5}`), 0644))

	report := p.run(t, server.URL, "LIMITED", "DEMO")

	limited, _ := report.Result("LIMITED")
	assert.Equal(t, StateHalted, limited.State)
	assert.Equal(t, 5, limited.Offset)
	assert.ErrorIs(t, limited.Err, retry.ErrAttemptsExhausted)

	demo, _ := report.Result("DEMO")
	assert.Equal(t, StateExhausted, demo.State)

	// Five attempts for LIMITED, two pages for DEMO.
	assert.Equal(t, int32(7), atomic.LoadInt32(&requests))
	assert.Equal(t, map[string]int{"LIMITED": 5, "DEMO": 3}, p.offsets(t))
	assert.Len(t, p.lines(t), 3)
}

func TestPipelineResumesAfterPartialRun(t *testing.T) {
	var requests int32
	server := demoServer(t, 5, &requests)
	p := newPipeline(t)

	require.NoError(t, os.WriteFile(p.checkpoint, []byte(`{"DEMO": 2}`), 0644))
	require.NoError(t, os.WriteFile(p.corpus, []byte(`{"issue_key":"DEMO-1"}`+"\n"+`{"issue_key":"DEMO-2"}`+"\n"), 0644))

	p.run(t, server.URL, "DEMO")

	lines := p.lines(t)
	require.Len(t, lines, 5)
	assert.Contains(t, lines[2], `"issue_key":"DEMO-3"`)
	assert.Contains(t, lines[4], `"issue_key":"DEMO-5"`)
	assert.Equal(t, map[string]int{"DEMO": 5}, p.offsets(t))
}
