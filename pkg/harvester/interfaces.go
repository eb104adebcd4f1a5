package harvester

import (
	"context"

	"jiraharvest/pkg/checkpoint"
	"jiraharvest/pkg/jira"
	"jiraharvest/pkg/transform"
)

// PageFetcher returns one page of a source starting at offset. Its error is
// final: transient failures have already been retried.
type PageFetcher interface {
	FetchPage(ctx context.Context, source string, offset int) (*jira.Page, error)
}

// Sink accepts normalized records. Sync must not return until every
// appended record is durable.
type Sink interface {
	Append(rec transform.Record) error
	Sync() error
}

// CheckpointStore loads and saves the offsets document.
type CheckpointStore interface {
	Load(sources []string) (checkpoint.Offsets, error)
	Save(offsets checkpoint.Offsets) error
}

// PageEvent describes a page whose records and checkpoint are both on disk.
type PageEvent struct {
	Source  string
	Records int
	Offset  int
	Total   int
	Page    int
}

// Observer receives progress events. Calls are made from the harvest
// goroutine and should return quickly.
type Observer interface {
	SourceStarted(source string, offset int)
	PageProcessed(event PageEvent)
	SourceFinished(result Result)
}

type nopObserver struct{}

func (nopObserver) SourceStarted(string, int) {}
func (nopObserver) PageProcessed(PageEvent)   {}
func (nopObserver) SourceFinished(Result)     {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) SourceStarted(source string, offset int) {
	for _, obs := range o {
		obs.SourceStarted(source, offset)
	}
}

func (o Observers) PageProcessed(event PageEvent) {
	for _, obs := range o {
		obs.PageProcessed(event)
	}
}

func (o Observers) SourceFinished(result Result) {
	for _, obs := range o {
		obs.SourceFinished(result)
	}
}
