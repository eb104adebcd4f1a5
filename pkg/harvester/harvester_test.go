package harvester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiraharvest/pkg/checkpoint"
	errs "jiraharvest/pkg/errors"
	"jiraharvest/pkg/jira"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/transform"
)

// fakeSource serves keys in order. Total overrides the reported total when
// set; errAt fails the fetch at a given offset.
type fakeSource struct {
	keys  []string
	total int
	errAt map[int]error
}

type fetchCall struct {
	source string
	offset int
}

type fakeFetcher struct {
	mu       sync.Mutex
	pageSize int
	sources  map[string]*fakeSource
	calls    []fetchCall
}

func newFakeFetcher(pageSize int) *fakeFetcher {
	return &fakeFetcher{pageSize: pageSize, sources: map[string]*fakeSource{}}
}

func (f *fakeFetcher) add(source string, n int) *fakeSource {
	src := &fakeSource{errAt: map[int]error{}}
	for i := 1; i <= n; i++ {
		src.keys = append(src.keys, fmt.Sprintf("%s-%d", source, i))
	}
	f.sources[source] = src
	return src
}

func (f *fakeFetcher) FetchPage(ctx context.Context, source string, offset int) (*jira.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{source, offset})

	src, ok := f.sources[source]
	if !ok {
		return nil, errs.New(errs.ErrorTypeBadRequest, 400, "unknown project "+source)
	}
	if err := src.errAt[offset]; err != nil {
		return nil, err
	}

	total := len(src.keys)
	if src.total > 0 {
		total = src.total
	}
	page := &jira.Page{StartAt: offset, MaxResults: f.pageSize, Total: total}
	for i := offset; i < len(src.keys) && i < offset+f.pageSize; i++ {
		page.Issues = append(page.Issues, json.RawMessage(fmt.Sprintf(`{"key":%q,"fields":{"summary":"issue %d"}}`, src.keys[i], i)))
	}
	return page, nil
}

func (f *fakeFetcher) callsFor(source string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var offsets []int
	for _, c := range f.calls {
		if c.source == source {
			offsets = append(offsets, c.offset)
		}
	}
	return offsets
}

type memSink struct {
	records   []transform.Record
	syncs     int
	failAfter int
}

func (s *memSink) Append(rec transform.Record) error {
	if s.failAfter > 0 && len(s.records) >= s.failAfter {
		return errors.New("disk full")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memSink) Sync() error {
	s.syncs++
	return nil
}

func (s *memSink) keys() []string {
	keys := make([]string, 0, len(s.records))
	for _, r := range s.records {
		keys = append(keys, r.IssueKey)
	}
	return keys
}

type memStore struct {
	initial checkpoint.Offsets
	saves   []checkpoint.Offsets
	saveErr error
	loadErr error
}

func (s *memStore) Load(sources []string) (checkpoint.Offsets, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	offsets := s.initial.Clone()
	for _, src := range sources {
		if _, ok := offsets[src]; !ok {
			offsets[src] = 0
		}
	}
	return offsets, nil
}

func (s *memStore) Save(offsets checkpoint.Offsets) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, offsets.Clone())
	return nil
}

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) SourceStarted(source string, offset int) {
	o.events = append(o.events, fmt.Sprintf("start %s@%d", source, offset))
}

func (o *recordingObserver) PageProcessed(e PageEvent) {
	o.events = append(o.events, fmt.Sprintf("page %s %d/%d", e.Source, e.Offset, e.Total))
}

func (o *recordingObserver) SourceFinished(r Result) {
	o.events = append(o.events, fmt.Sprintf("done %s %s", r.Source, r.State))
}

func newTestHarvester(sources []string, f PageFetcher, sink Sink, store CheckpointStore, opts ...Option) *Harvester {
	opts = append([]Option{WithLogger(logger.NewNopLogger())}, opts...)
	return New(sources, f, sink, store, opts...)
}

func TestColdStartTwoPages(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.add("DEMO", 3)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{}}
	obs := &recordingObserver{}

	report, err := newTestHarvester([]string{"DEMO"}, fetcher, sink, store, WithObserver(obs)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, fetcher.callsFor("DEMO"))
	assert.Equal(t, []checkpoint.Offsets{{"DEMO": 2}, {"DEMO": 3}}, store.saves)
	assert.Equal(t, []string{"DEMO-1", "DEMO-2", "DEMO-3"}, sink.keys())
	assert.Equal(t, 2, sink.syncs)

	res, ok := report.Result("DEMO")
	require.True(t, ok)
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 0, res.StartOffset)
	assert.Equal(t, 3, res.Offset)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 2, res.Pages)
	assert.NoError(t, res.Err)
	assert.Empty(t, report.Halted())

	assert.Equal(t, []string{"start DEMO@0", "page DEMO 2/3", "page DEMO 3/3", "done DEMO exhausted"}, obs.events)
}

func TestResumeFromCheckpoint(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.add("DEMO", 3)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{"DEMO": 2}}

	report, err := newTestHarvester([]string{"DEMO"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2}, fetcher.callsFor("DEMO"))
	assert.Equal(t, []string{"DEMO-3"}, sink.keys())
	assert.Equal(t, []checkpoint.Offsets{{"DEMO": 3}}, store.saves)
	assert.Equal(t, 1, report.Records())
}

func TestAlreadyExhaustedSource(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.add("DEMO", 3)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{"DEMO": 3}}

	report, err := newTestHarvester([]string{"DEMO"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sink.records)
	res, _ := report.Result("DEMO")
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, res.Offset)
}

func TestFatalFetchHaltsOnlyThatSource(t *testing.T) {
	fetcher := newFakeFetcher(2)
	bad := fetcher.add("BAD", 4)
	bad.errAt[2] = errs.New(errs.ErrorTypeAuth, 401, "unauthorized")
	fetcher.add("GOOD", 1)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{}}

	report, err := newTestHarvester([]string{"BAD", "GOOD"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)

	badRes, _ := report.Result("BAD")
	assert.Equal(t, StateHalted, badRes.State)
	assert.Equal(t, 2, badRes.Offset)
	var apiErr *errs.Error
	require.ErrorAs(t, badRes.Err, &apiErr)
	assert.Equal(t, errs.ErrorTypeAuth, apiErr.Type)

	goodRes, _ := report.Result("GOOD")
	assert.Equal(t, StateExhausted, goodRes.State)

	assert.Equal(t, []string{"BAD-1", "BAD-2", "GOOD-1"}, sink.keys())
	assert.Equal(t, checkpoint.Offsets{"BAD": 2, "GOOD": 1}, store.saves[len(store.saves)-1])
	assert.Len(t, report.Halted(), 1)
}

func TestSinkFailureHaltsRemainingSources(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.add("FIRST", 4)
	fetcher.add("SECOND", 2)
	sink := &memSink{failAfter: 3}
	store := &memStore{initial: checkpoint.Offsets{"SECOND": 1}}

	report, err := newTestHarvester([]string{"FIRST", "SECOND"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)

	first, _ := report.Result("FIRST")
	assert.Equal(t, StateHalted, first.State)
	assert.Equal(t, 2, first.Offset)
	assert.EqualError(t, first.Err, "disk full")

	second, _ := report.Result("SECOND")
	assert.Equal(t, StateHalted, second.State)
	assert.Equal(t, 1, second.Offset)
	assert.ErrorIs(t, second.Err, ErrOutputUnavailable)
	assert.Empty(t, fetcher.callsFor("SECOND"))

	// The page that failed mid-write never reached the checkpoint.
	assert.Equal(t, []checkpoint.Offsets{{"FIRST": 2, "SECOND": 1}}, store.saves)
}

func TestCheckpointSaveFailureHaltsSource(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.add("DEMO", 3)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{}, saveErr: errors.New("read-only filesystem")}

	report, err := newTestHarvester([]string{"DEMO"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)

	res, _ := report.Result("DEMO")
	assert.Equal(t, StateHalted, res.State)
	assert.Equal(t, 0, res.Offset)
	assert.Equal(t, []int{0}, fetcher.callsFor("DEMO"))
	assert.Len(t, sink.records, 2)
}

func TestEmptyPageBeforeTotal(t *testing.T) {
	fetcher := newFakeFetcher(2)
	src := fetcher.add("DEMO", 2)
	src.total = 5
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{}}
	log := logger.NewTestLogger()

	report, err := New([]string{"DEMO"}, fetcher, sink, store, WithLogger(log)).Run(context.Background())
	require.NoError(t, err)

	res, _ := report.Result("DEMO")
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 2, res.Offset)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, []int{0, 2}, fetcher.callsFor("DEMO"))
	assert.True(t, log.HasMessage("Empty page before reported total"))
}

func TestTotalIsReadFromEveryPage(t *testing.T) {
	fetcher := newFakeFetcher(2)
	src := fetcher.add("DEMO", 4)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{}}

	// The first page claims 2 issues; the source has grown to 4 by the time
	// it is resumed.
	src.total = 2
	_, err := newTestHarvester([]string{"DEMO"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, fetcher.callsFor("DEMO"))

	src.total = 0
	store.initial = store.saves[len(store.saves)-1]
	report, err := newTestHarvester([]string{"DEMO"}, fetcher, sink, store).Run(context.Background())
	require.NoError(t, err)

	res, _ := report.Result("DEMO")
	assert.Equal(t, 4, res.Offset)
	assert.Equal(t, []string{"DEMO-1", "DEMO-2", "DEMO-3", "DEMO-4"}, sink.keys())
}

type cancelAfterFirstPage struct {
	recordingObserver
	cancel context.CancelFunc
}

func (c *cancelAfterFirstPage) PageProcessed(e PageEvent) {
	c.recordingObserver.PageProcessed(e)
	c.cancel()
}

func TestCancellationStopsBeforeNextFetch(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.add("A", 5)
	fetcher.add("B", 1)
	sink := &memSink{}
	store := &memStore{initial: checkpoint.Offsets{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &cancelAfterFirstPage{cancel: cancel}

	report, err := newTestHarvester([]string{"A", "B"}, fetcher, sink, store, WithObserver(obs)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, StateHalted, res.State)
	assert.Equal(t, 2, res.Offset)
	assert.ErrorIs(t, res.Err, context.Canceled)

	assert.Equal(t, []int{0}, fetcher.callsFor("A"))
	assert.Empty(t, fetcher.callsFor("B"))
	assert.Equal(t, []checkpoint.Offsets{{"A": 2, "B": 0}}, store.saves)
}

func TestRunSetupErrors(t *testing.T) {
	_, err := newTestHarvester(nil, newFakeFetcher(1), &memSink{}, &memStore{}).Run(context.Background())
	assert.Error(t, err)

	store := &memStore{loadErr: errors.New("locked")}
	_, err = newTestHarvester([]string{"A"}, newFakeFetcher(1), &memSink{}, store).Run(context.Background())
	assert.ErrorContains(t, err, "failed to load checkpoint")
}

func TestObserversFanOut(t *testing.T) {
	fetcher := newFakeFetcher(5)
	fetcher.add("DEMO", 1)
	a, b := &recordingObserver{}, &recordingObserver{}

	_, err := newTestHarvester([]string{"DEMO"}, fetcher, &memSink{}, &memStore{initial: checkpoint.Offsets{}}, WithObserver(a, b)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.events, b.events)
	assert.Len(t, a.events, 3)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "halted", StateHalted.String())
}
