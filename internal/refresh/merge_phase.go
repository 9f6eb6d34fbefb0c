package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/reconcile"
	"github.com/vrsandeep/mylist-go/internal/store"
)

// DefaultMergeWorkers bounds concurrent merges. Merges are storage bound so
// this can be wider than the fetch pool.
const DefaultMergeWorkers = 8

// Scope is a storage handle owned by exactly one merge task.
type Scope interface {
	reconcile.Storage
	Commit() error
	Close() error
}

// ScopeOpener hands out a fresh Scope per call.
type ScopeOpener func(ctx context.Context) (Scope, error)

// StoreScopes opens scopes on a store.
func StoreScopes(s *store.Store) ScopeOpener {
	return func(ctx context.Context) (Scope, error) {
		sc, err := s.OpenScope(ctx)
		if err != nil {
			return nil, err
		}
		return sc, nil
	}
}

// MergeOutcome is what happened to one list in the merge phase. FetchErr is
// carried over from the fetch phase; MergeErr is set when reconciliation or
// its bookkeeping failed.
type MergeOutcome struct {
	ListURL  string
	Outcome  *reconcile.Outcome
	FetchErr error
	MergeErr error
}

// Failed reports whether the list counts as a failed check.
func (m *MergeOutcome) Failed() bool {
	return m.FetchErr != nil || m.MergeErr != nil
}

// MergePhase applies fetch outcomes to storage under a fixed-size worker
// pool, one storage scope per task.
type MergePhase struct {
	engine   *reconcile.Engine
	open     ScopeOpener
	workers  int
	progress ProgressSink
}

// NewMergePhase creates a merge phase. workers < 1 uses DefaultMergeWorkers.
func NewMergePhase(engine *reconcile.Engine, open ScopeOpener, workers int, progress ProgressSink) *MergePhase {
	if workers < 1 {
		workers = DefaultMergeWorkers
	}
	if progress == nil {
		progress = NopProgress{}
	}
	return &MergePhase{engine: engine, open: open, workers: workers, progress: progress}
}

// Run merges every fetch outcome, successful or not. at is used as the
// check time for failed fetches; successful ones use their own fetch time.
func (p *MergePhase) Run(ctx context.Context, fetched map[string]*FetchOutcome, at time.Time) map[string]*MergeOutcome {
	outcomes := make(map[string]*MergeOutcome, len(fetched))
	if len(fetched) == 0 {
		return outcomes
	}

	jobs := make(chan *FetchOutcome, len(fetched))
	results := make(chan *MergeOutcome, len(fetched))

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(fetched)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fo := range jobs {
				results <- p.mergeOne(ctx, fo, at)
			}
		}()
	}

	for _, fo := range fetched {
		jobs <- fo
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		outcomes[res.ListURL] = res
		p.progress.Report(PhaseMerge, res.ListURL, completed, len(fetched))
	}
	return outcomes
}

func (p *MergePhase) mergeOne(ctx context.Context, fo *FetchOutcome, at time.Time) (mo *MergeOutcome) {
	mo = &MergeOutcome{ListURL: fo.ListURL, FetchErr: fo.Err}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Merge bookkeeping panicked", "list", fo.ListURL, "panic", r)
			mo.Outcome = nil
			mo.MergeErr = fmt.Errorf("merge %s panicked: %v", fo.ListURL, r)
		}
	}()

	if fo.Err != nil || fo.Result == nil {
		if mo.FetchErr == nil {
			mo.FetchErr = fmt.Errorf("fetch %s produced no result", fo.ListURL)
		}
		if err := p.recordFailure(ctx, fo.ListURL, at); err != nil {
			mo.MergeErr = err
		}
		return mo
	}

	checkedAt := fo.Result.FetchedAt
	if checkedAt.IsZero() {
		checkedAt = at
	}

	outcome, err := p.reconcile(ctx, fo, checkedAt)
	if err != nil {
		log.Warn("List merge failed", "list", fo.ListURL, "err", err)
		mo.MergeErr = err
		if ferr := p.recordFailure(ctx, fo.ListURL, checkedAt); ferr != nil {
			log.Error("Could not record merge failure", "list", fo.ListURL, "err", ferr)
		}
		return mo
	}
	mo.Outcome = outcome
	return mo
}

// reconcile runs the merge inside its own scope. The scope is released
// before returning whatever the outcome.
func (p *MergePhase) reconcile(ctx context.Context, fo *FetchOutcome, at time.Time) (outcome *reconcile.Outcome, err error) {
	sc, err := p.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening storage scope: %w", err)
	}
	defer sc.Close()
	// A panic mid-merge is reported as an ordinary merge failure; the
	// deferred Close then rolls the scope back.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Merge panicked", "list", fo.ListURL, "panic", r)
			outcome = nil
			err = fmt.Errorf("merge %s panicked: %v", fo.ListURL, r)
		}
	}()

	meta := fo.Result.Metadata
	outcome, err = p.engine.Reconcile(ctx, sc, fo.ListURL, fo.Result.Videos, &meta, at)
	if err != nil {
		return nil, err
	}
	if err := sc.Commit(); err != nil {
		return nil, fmt.Errorf("committing merge: %w", err)
	}
	return outcome, nil
}

// recordFailure books a failed check in a scope of its own, so nothing a
// failed merge wrote survives.
func (p *MergePhase) recordFailure(ctx context.Context, listURL string, at time.Time) error {
	sc, err := p.open(ctx)
	if err != nil {
		return fmt.Errorf("opening storage scope: %w", err)
	}
	defer sc.Close()

	if err := p.engine.RecordFailure(ctx, sc, listURL, at); err != nil {
		return fmt.Errorf("recording failure of %s: %w", listURL, err)
	}
	return sc.Commit()
}
