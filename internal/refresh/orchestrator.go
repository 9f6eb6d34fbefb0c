package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vrsandeep/mylist-go/internal/fetcher"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/reconcile"
	"github.com/vrsandeep/mylist-go/internal/store"
)

// Mode selects which lists a cycle targets.
type Mode int

const (
	// ModeFull refreshes every tracked list.
	ModeFull Mode = iota
	// ModeDue refreshes only lists whose check interval has elapsed.
	ModeDue
	// ModeSelected refreshes an explicit set of lists.
	ModeSelected
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeDue:
		return "due"
	case ModeSelected:
		return "selected"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ListReport is one list's result within a cycle.
type ListReport struct {
	URL      string          `json:"url"`
	Strategy models.Strategy `json:"strategy"`
	Fetched  int             `json:"fetched"`
	Inserted int             `json:"inserted"`
	FoundNew bool            `json:"found_new"`
	Empty    bool            `json:"empty"`
	Error    string          `json:"error,omitempty"`
}

// Report summarises a cycle. Individual list failures are listed here and
// counted in each list's consecutive_check_failures; they never fail the
// cycle itself.
type Report struct {
	RunID      string       `json:"run_id"`
	Mode       string       `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Targeted   int          `json:"targeted"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	NewVideos  int          `json:"new_videos"`
	Lists      []ListReport `json:"lists"`
}

// Options configures an Orchestrator.
type Options struct {
	FetchWorkers         int
	MergeWorkers         int
	DefaultCheckInterval time.Duration
	Progress             ProgressSink
	Now                  func() time.Time
}

// Orchestrator is the entry point of a refresh cycle. It does not guard
// against overlapping cycles; callers serialise them.
type Orchestrator struct {
	store           *store.Store
	fetch           *FetchPhase
	merge           *MergePhase
	defaultInterval time.Duration
	now             func() time.Time
}

// NewOrchestrator wires both phases around a store and a fetcher registry.
func NewOrchestrator(st *store.Store, registry *fetcher.Registry, engine *reconcile.Engine, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.DefaultCheckInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	fetch := NewFetchPhase(registry, opts.FetchWorkers, opts.Progress)
	fetch.now = now
	return &Orchestrator{
		store:           st,
		fetch:           fetch,
		merge:           NewMergePhase(engine, StoreScopes(st), opts.MergeWorkers, opts.Progress),
		defaultInterval: interval,
		now:             now,
	}
}

// WithProgress returns a copy of the orchestrator that reports to sink.
func (o *Orchestrator) WithProgress(sink ProgressSink) *Orchestrator {
	if sink == nil {
		sink = NopProgress{}
	}
	fetch := *o.fetch
	fetch.progress = sink
	merge := *o.merge
	merge.progress = sink
	copied := *o
	copied.fetch = &fetch
	copied.merge = &merge
	return &copied
}

// Run refreshes all lists (ModeFull) or only the overdue ones (ModeDue).
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (*Report, error) {
	lists, err := o.store.GetAllLists()
	if err != nil {
		return nil, fmt.Errorf("loading tracked lists: %w", err)
	}

	if mode == ModeDue {
		now := o.now()
		due := lists[:0:0]
		for _, l := range lists {
			if IsDue(l, now, o.defaultInterval) {
				due = append(due, l)
			}
		}
		lists = due
	}
	return o.run(ctx, mode, lists)
}

// RunLists refreshes the given lists regardless of their check interval.
func (o *Orchestrator) RunLists(ctx context.Context, urls []string) (*Report, error) {
	var lists []*models.TrackedList
	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		if seen[url] {
			continue
		}
		seen[url] = true
		l, err := o.store.GetListByURL(url)
		if err != nil {
			return nil, fmt.Errorf("loading list %s: %w", url, err)
		}
		lists = append(lists, l)
	}
	return o.run(ctx, ModeSelected, lists)
}

func (o *Orchestrator) run(ctx context.Context, mode Mode, lists []*models.TrackedList) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Mode:      mode.String(),
		StartedAt: o.now(),
		Targeted:  len(lists),
		Lists:     []ListReport{},
	}
	logger := log.With("run", report.RunID, "mode", report.Mode)
	logger.Info("Refresh cycle started", "lists", len(lists))

	tasks := make([]FetchTask, 0, len(lists))
	for _, l := range lists {
		count, err := o.store.CountVideos(l.URL)
		if err != nil {
			return nil, fmt.Errorf("counting videos of %s: %w", l.URL, err)
		}
		tasks = append(tasks, FetchTask{ListURL: l.URL, Strategy: SelectStrategy(l, count > 0)})
	}

	fetched := o.fetch.Run(ctx, tasks)
	merged := o.merge.Run(ctx, fetched, o.now())

	for _, task := range tasks {
		lr := ListReport{URL: task.ListURL, Strategy: task.Strategy}
		if fo := fetched[task.ListURL]; fo != nil && fo.Result != nil {
			lr.Fetched = len(fo.Result.Videos)
			lr.Empty = fo.Result.Empty()
		}
		mo := merged[task.ListURL]
		switch {
		case mo == nil:
			lr.Error = "list was not merged"
		case mo.Failed():
			lr.Error = errors.Join(mo.FetchErr, mo.MergeErr).Error()
		default:
			lr.Inserted = mo.Outcome.Inserted
			lr.FoundNew = mo.Outcome.FoundNew
		}

		if lr.Error != "" {
			report.Failed++
		} else {
			report.Succeeded++
			report.NewVideos += lr.Inserted
		}
		report.Lists = append(report.Lists, lr)
	}

	report.FinishedAt = o.now()
	logger.Info("Refresh cycle finished",
		"lists", report.Targeted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"new_videos", report.NewVideos,
		"took", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}
