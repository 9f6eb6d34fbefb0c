package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/fetcher"
	"github.com/vrsandeep/mylist-go/internal/models"
)

// DefaultFetchWorkers bounds concurrent fetches. The remote site, not the
// client, is the bottleneck.
const DefaultFetchWorkers = 4

// FetchTask is one list to fetch with an explicitly chosen strategy.
type FetchTask struct {
	ListURL  string
	Strategy models.Strategy
}

// FetchOutcome is either a Result or an Err, never both.
type FetchOutcome struct {
	ListURL    string
	Strategy   models.Strategy
	Result     *fetcher.Result
	Err        error
	FinishedAt time.Time
}

// FetchPhase runs fetches under a fixed-size worker pool. It never touches
// storage.
type FetchPhase struct {
	registry *fetcher.Registry
	workers  int
	progress ProgressSink
	now      func() time.Time
}

// NewFetchPhase creates a fetch phase. workers < 1 uses DefaultFetchWorkers.
func NewFetchPhase(registry *fetcher.Registry, workers int, progress ProgressSink) *FetchPhase {
	if workers < 1 {
		workers = DefaultFetchWorkers
	}
	if progress == nil {
		progress = NopProgress{}
	}
	return &FetchPhase{registry: registry, workers: workers, progress: progress, now: time.Now}
}

// Run fetches every task and returns the outcomes keyed by list URL. A
// failing or panicking task only affects its own outcome.
func (p *FetchPhase) Run(ctx context.Context, tasks []FetchTask) map[string]*FetchOutcome {
	outcomes := make(map[string]*FetchOutcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	jobs := make(chan FetchTask, len(tasks))
	results := make(chan *FetchOutcome, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(tasks)); i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, jobs, results)
	}

	for _, task := range tasks {
		jobs <- task
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
		p.progress.Report(PhaseFetch, res.ListURL, completed, len(tasks))
	}
	return outcomes
}

func (p *FetchPhase) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan FetchTask, results chan<- *FetchOutcome) {
	defer wg.Done()
	for task := range jobs {
		results <- p.fetchOne(ctx, task)
	}
}

func (p *FetchPhase) fetchOne(ctx context.Context, task FetchTask) (outcome *FetchOutcome) {
	outcome = &FetchOutcome{ListURL: task.ListURL, Strategy: task.Strategy}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Fetch panicked", "list", task.ListURL, "panic", r)
			outcome.Result = nil
			outcome.Err = fmt.Errorf("fetch %s panicked: %v", task.ListURL, r)
		}
		outcome.FinishedAt = p.now()
	}()

	f, ok := p.registry.Get(task.Strategy)
	if !ok {
		outcome.Err = fmt.Errorf("no fetcher registered for strategy %q", task.Strategy)
		return outcome
	}

	result, err := f.Fetch(ctx, task.ListURL)
	if err != nil {
		log.Warn("List fetch failed", "list", task.ListURL, "strategy", task.Strategy, "err", err)
		outcome.Err = err
		return outcome
	}
	outcome.Result = result
	return outcome
}
