package checkpoint

import (
	"errors"
	"fmt"
	"sort"

	"jiraharvest/pkg/config"
	"jiraharvest/pkg/logger"
)

// ErrOffsetDecrease is returned when an update would move a source backwards.
var ErrOffsetDecrease = errors.New("checkpoint offset cannot decrease")

// Offsets maps a source to the number of its records durably written to the
// corpus, which is also the offset of the next page to request.
type Offsets map[string]int

// Get returns the offset for source, zero if it has none.
func (o Offsets) Get(source string) int {
	return o[source]
}

// Advance moves source forward to next.
func (o Offsets) Advance(source string, next int) error {
	if current := o[source]; next < current {
		return fmt.Errorf("%w: %s from %d to %d", ErrOffsetDecrease, source, current, next)
	}
	o[source] = next
	return nil
}

// Clone returns an independent copy.
func (o Offsets) Clone() Offsets {
	out := make(Offsets, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Sources returns the keys in sorted order.
func (o Offsets) Sources() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store persists the offsets document. Save replaces the whole document
// atomically; a reader never observes a partial update.
type Store interface {
	// Load returns the stored offsets with every name in sources present.
	// Entries for other sources are kept so a later Save does not drop them.
	Load(sources []string) (Offsets, error)
	Save(offsets Offsets) error
	Close() error
}

// Open returns the store selected by cfg.
func Open(cfg *config.CheckpointConfig, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	switch cfg.Backend {
	case "", config.BackendFile:
		return NewFileStore(cfg.Path, log), nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// Reset sets the given sources back to zero, or every stored source when
// sources is empty. It is an operator action; the harvester never calls it.
func Reset(store Store, sources []string) (Offsets, error) {
	offsets, err := store.Load(sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	targets := sources
	if len(targets) == 0 {
		targets = offsets.Sources()
	}
	for _, source := range targets {
		offsets[source] = 0
	}

	if err := store.Save(offsets); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return offsets, nil
}

// fill adds a zero entry for every missing source.
func fill(offsets Offsets, sources []string) Offsets {
	if offsets == nil {
		offsets = make(Offsets, len(sources))
	}
	for _, source := range sources {
		if _, ok := offsets[source]; !ok {
			offsets[source] = 0
		}
	}
	return offsets
}
