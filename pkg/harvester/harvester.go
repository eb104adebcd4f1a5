package harvester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jiraharvest/pkg/checkpoint"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/transform"
)

// ErrOutputUnavailable marks sources skipped after the sink failed.
var ErrOutputUnavailable = errors.New("output unavailable after an earlier write failure")

// Harvester drives each source from its checkpoint to the upstream total,
// one page at a time. A page's records are appended and synced before the
// checkpoint moves, so a crash can only repeat work.
type Harvester struct {
	sources  []string
	fetcher  PageFetcher
	sink     Sink
	store    CheckpointStore
	observer Observer
	logger   logger.Logger
}

// Option configures a Harvester
type Option func(*Harvester)

// WithObserver registers progress observers.
func WithObserver(observers ...Observer) Option {
	return func(h *Harvester) {
		switch len(observers) {
		case 0:
		case 1:
			h.observer = observers[0]
		default:
			h.observer = Observers(observers)
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(h *Harvester) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Harvester for sources, processed in the given order.
func New(sources []string, fetcher PageFetcher, sink Sink, store CheckpointStore, opts ...Option) *Harvester {
	h := &Harvester{
		sources:  append([]string(nil), sources...),
		fetcher:  fetcher,
		sink:     sink,
		store:    store,
		observer: nopObserver{},
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run harvests every source. Halted sources do not fail the run; they are
// reported and resume next time. The returned error is non-nil only when the
// checkpoint cannot be loaded or ctx ends, in which case the report holds
// the sources processed so far.
func (h *Harvester) Run(ctx context.Context) (*Report, error) {
	if len(h.sources) == 0 {
		return nil, errors.New("no sources to harvest")
	}

	offsets, err := h.store.Load(h.sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	start := time.Now()
	report := &Report{}

	h.logger.InfoWithFields("Starting harvest", map[string]interface{}{
		"sources": h.sources,
	})

	for i, source := range h.sources {
		if ctx.Err() != nil {
			break
		}

		res, outputFailed := h.harvestSource(ctx, source, offsets)
		report.Results = append(report.Results, res)
		h.observer.SourceFinished(res)

		if outputFailed {
			for _, rest := range h.sources[i+1:] {
				skipped := Result{
					Source:      rest,
					State:       StateHalted,
					StartOffset: offsets.Get(rest),
					Offset:      offsets.Get(rest),
					Err:         ErrOutputUnavailable,
				}
				report.Results = append(report.Results, skipped)
				h.observer.SourceFinished(skipped)
			}
			break
		}
	}

	report.Duration = time.Since(start)

	h.logger.InfoWithFields("Harvest finished", map[string]interface{}{
		"records":  report.Records(),
		"halted":   len(report.Halted()),
		"duration": report.Duration.String(),
	})

	return report, ctx.Err()
}

// harvestSource runs one source until it is exhausted or halted. The second
// return value reports a sink failure, which stops the whole run.
func (h *Harvester) harvestSource(ctx context.Context, source string, offsets checkpoint.Offsets) (Result, bool) {
	start := time.Now()
	offset := offsets.Get(source)
	res := Result{
		Source:      source,
		State:       StateActive,
		StartOffset: offset,
		Offset:      offset,
	}
	log := h.logger.WithField("source", source)

	halt := func(err error, msg string) Result {
		res.State = StateHalted
		res.Err = err
		res.Duration = time.Since(start)
		log.WithError(err).ErrorWithFields(msg, map[string]interface{}{
			"resume_offset": res.Offset,
		})
		return res
	}

	log.InfoWithFields("Harvesting source", map[string]interface{}{
		"offset": offset,
	})
	h.observer.SourceStarted(source, offset)

	for {
		if err := ctx.Err(); err != nil {
			return halt(err, "Harvest interrupted"), false
		}

		page, err := h.fetcher.FetchPage(ctx, source, offset)
		if err != nil {
			return halt(err, "Source halted, rerun to resume"), false
		}
		res.Total = page.Total

		for _, raw := range page.Issues {
			if err := h.sink.Append(transform.Transform(raw)); err != nil {
				return halt(err, "Failed to write record"), true
			}
		}
		if err := h.sink.Sync(); err != nil {
			return halt(err, "Failed to sync output"), true
		}

		next := offset + len(page.Issues)
		if err := offsets.Advance(source, next); err != nil {
			return halt(err, "Checkpoint rejected update"), false
		}
		if err := h.store.Save(offsets); err != nil {
			return halt(err, "Failed to save checkpoint"), false
		}

		res.Offset = next
		res.Records += len(page.Issues)
		res.Pages++

		logger.LogHarvestProgress(log, source, len(page.Issues), next, page.Total)
		h.observer.PageProcessed(PageEvent{
			Source:  source,
			Records: len(page.Issues),
			Offset:  next,
			Total:   page.Total,
			Page:    res.Pages,
		})

		if len(page.Issues) == 0 && next < page.Total {
			log.WarnWithFields("Empty page before reported total, treating source as exhausted", map[string]interface{}{
				"offset": next,
				"total":  page.Total,
			})
			break
		}
		if next >= page.Total {
			break
		}
		offset = next
	}

	res.State = StateExhausted
	res.Duration = time.Since(start)
	log.InfoWithFields("Source exhausted", map[string]interface{}{
		"records": res.Records,
		"offset":  res.Offset,
		"total":   res.Total,
	})
	return res, false
}
