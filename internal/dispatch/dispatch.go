// Package dispatch fans a single query out to the selected indexes, each
// behind its own timeout and error boundary. One index failing or timing
// out never suppresses the others; the aggregate always carries partial
// results plus per-index errors.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/codeindex"
	"github.com/dshills/codequery/internal/depindex"
	"github.com/dshills/codequery/internal/fileindex"
	"github.com/dshills/codequery/internal/logindex"
	"github.com/dshills/codequery/internal/semindex"
	"github.com/dshills/codequery/pkg/types"
)

// Dispatcher owns one instance of every index. All of them share the same
// fingerprint cache handle.
type Dispatcher struct {
	code   *codeindex.Index
	files  *fileindex.Index
	deps   *depindex.Index
	logs   *logindex.Index
	sem    *semindex.Index
	logger *log.Logger
}

// New builds a dispatcher over a shared cache and a semantic index. The
// semantic index is constructed separately because its backend capability
// is resolved from the environment at startup.
func New(c *cache.Cache, sem *semindex.Index) *Dispatcher {
	if sem == nil {
		sem = semindex.New(nil)
	}
	return &Dispatcher{
		code:   codeindex.New(c),
		files:  fileindex.New(c),
		deps:   depindex.New(c),
		logs:   logindex.New(),
		sem:    sem,
		logger: log.New(io.Discard, "", 0),
	}
}

// SetLogger installs a logger on the dispatcher and every index
func (d *Dispatcher) SetLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	d.logger = logger
	d.code.SetLogger(logger)
	d.files.SetLogger(logger)
	d.deps.SetLogger(logger)
	d.logs.SetLogger(logger)
	d.sem.SetLogger(logger)
}

// Code returns the code index
func (d *Dispatcher) Code() *codeindex.Index { return d.code }

// Files returns the file index
func (d *Dispatcher) Files() *fileindex.Index { return d.files }

// Deps returns the dependency index
func (d *Dispatcher) Deps() *depindex.Index { return d.deps }

// Logs returns the log index
func (d *Dispatcher) Logs() *logindex.Index { return d.logs }

// Semantic returns the semantic index
func (d *Dispatcher) Semantic() *semindex.Index { return d.sem }

// SearchAll runs each selected index concurrently. Configuration errors
// fail fast before any index is scheduled; everything else is absorbed
// into the per-index result. An empty selection means every index.
func (d *Dispatcher) SearchAll(ctx context.Context, config types.SearchConfig, selected []types.IndexKind) (*types.AggregateResult, error) {
	start := time.Now()

	if len(selected) == 0 {
		selected = types.AllIndexKinds
	}
	for _, kind := range selected {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown index kind %q", kind)
		}
	}
	if err := d.validate(config, selected); err != nil {
		return nil, err
	}

	aggregate := &types.AggregateResult{
		Results: make(map[types.IndexKind]*types.SearchResult, len(selected)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, kind := range selected {
		wg.Add(1)
		go func(kind types.IndexKind) {
			defer wg.Done()
			result := d.runIndex(ctx, kind, config)
			mu.Lock()
			aggregate.Results[kind] = result
			mu.Unlock()
		}(kind)
	}
	wg.Wait()

	aggregate.ExecutionTime = time.Since(start)
	return aggregate, nil
}

// validate fails fast on configuration errors. The semantic index treats
// the pattern as free text, so the regex check only applies when a
// pattern-matching index is selected.
func (d *Dispatcher) validate(config types.SearchConfig, selected []types.IndexKind) error {
	patternIndexes := false
	for _, kind := range selected {
		if kind != types.IndexSemantic {
			patternIndexes = true
		}
	}
	if patternIndexes {
		return config.Validate()
	}
	if config.Pattern == "" {
		return types.ErrEmptyPattern
	}
	return config.ValidateRoot()
}

// runIndex executes one index behind its own timeout and panic boundary
func (d *Dispatcher) runIndex(ctx context.Context, kind types.IndexKind, config types.SearchConfig) (result *types.SearchResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("dispatch: %s index panicked: %v", kind, r)
			result = &types.SearchResult{
				Errors: []string{fmt.Sprintf("%s index panicked: %v", kind, r)},
			}
		}
	}()

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	res, err := d.search(ctx, kind, config)
	if err != nil {
		return &types.SearchResult{Errors: []string{err.Error()}}
	}
	return res
}

// search dispatches exhaustively over the closed set of index kinds
func (d *Dispatcher) search(ctx context.Context, kind types.IndexKind, config types.SearchConfig) (*types.SearchResult, error) {
	switch kind {
	case types.IndexCode:
		return d.code.Search(ctx, config)
	case types.IndexFile:
		return d.files.Search(ctx, config)
	case types.IndexDependency:
		return d.deps.Search(ctx, config)
	case types.IndexLog:
		return d.logs.Search(ctx, config)
	case types.IndexSemantic:
		return d.sem.Search(ctx, config)
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}
