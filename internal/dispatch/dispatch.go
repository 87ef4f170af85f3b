package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// ErrHandlerNotFound is returned when a fetched event has no registered
// handler. The pipeline treats it as fatal because the archive query is
// filtered to names we claim to handle.
var ErrHandlerNotFound = errors.New("no handler registered for event")

// Call carries everything a handler needs to apply one event inside the
// per-block transaction.
type Call struct {
	Tx      swap.Querier
	Block   *events.Block
	Event   *events.Event
	Version uint32
	Logger  *logger.Logger
}

// BlockIndex renders the event's position string.
func (c *Call) BlockIndex() string {
	return events.BlockIndex(c.Block.Height, c.Event.IndexInBlock)
}

// Handler applies one event to the domain model.
type Handler func(ctx context.Context, call *Call) error

// Group is a set of handlers that became active at a given spec version.
type Group struct {
	SinceVersion uint32
	Handlers     map[string]Handler
}

// Table maps event names, bare and version-qualified, to handlers.
type Table struct {
	handlers map[string]Handler
}

// Build precomputes the dispatch table. Each group's handlers are written
// under the bare event name and under name@v for every version from the
// group's activation version up to the highest activation version seen, so
// later groups overwrite earlier ones exactly on the versions they cover.
// The expansion costs memory proportional to versions times handlers and
// buys constant-time lookup on the hot path.
func Build(groups []Group) *Table {
	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SinceVersion < sorted[j].SinceVersion
	})

	var maxVersion uint32
	for _, g := range sorted {
		if g.SinceVersion > maxVersion {
			maxVersion = g.SinceVersion
		}
	}

	handlers := make(map[string]Handler)
	for _, g := range sorted {
		for name, h := range g.Handlers {
			handlers[name] = h
			for v := g.SinceVersion; v <= maxVersion; v++ {
				handlers[fmt.Sprintf("%s@%d", name, v)] = h
			}
		}
	}

	return &Table{handlers: handlers}
}

// Lookup resolves the handler for an event at a given spec id. It probes the
// version-qualified key first and falls back to the bare name for versions
// past the expansion ceiling.
func (t *Table) Lookup(name, specID string) (Handler, error) {
	version, err := events.ParseSpecVersion(specID)
	if err != nil {
		return nil, err
	}

	if h, ok := t.handlers[fmt.Sprintf("%s@%d", name, version)]; ok {
		return h, nil
	}
	if h, ok := t.handlers[name]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s at %s", ErrHandlerNotFound, name, specID)
}

// Names returns the distinct bare event names in the table, for building the
// archive query allowlist.
func (t *Table) Names() []string {
	var names []string
	for k := range t.handlers {
		if !strings.Contains(k, "@") {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
