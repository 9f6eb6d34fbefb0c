package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/config"
	"github.com/vrsandeep/mylist-go/internal/refresh"
	"github.com/vrsandeep/mylist-go/internal/websocket"
)

// ErrJobRunning is returned when a job is requested while another one is
// still running. Jobs are refused, never queued.
var ErrJobRunning = errors.New("a job is already running")

// JobContext provides the dependencies a job needs. core.App implements it.
type JobContext interface {
	DB() *sql.DB
	Config() *config.Config
	WsHub() *websocket.Hub
	JobManager() *JobManager
	Orchestrator() *refresh.Orchestrator
}

type jobTask func(ctx JobContext) error

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// JobManager runs at most one job at a time across the process.
type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running bool
	appCtx  JobContext
}

func NewManager(appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:   make(map[string]jobTask),
		status: make(map[string]*JobStatus),
		appCtx: appCtx,
	}
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a registered job in the background. It fails immediately if
// the job is unknown or any job is already running.
func (jm *JobManager) RunJob(id string, ctx JobContext) error {
	if ctx == nil {
		ctx = jm.appCtx
	}
	jm.mu.Lock()
	_, ok := jm.jobs[id]
	jm.mu.Unlock()
	if !ok {
		return fmt.Errorf("job '%s' not found", id)
	}
	task, status, err := jm.begin(id)
	if err != nil {
		return err
	}
	go jm.execute(id, status, func() error { return task(ctx) })
	return nil
}

// RunNow runs fn synchronously under the job lock, recording its outcome
// under id. It is used for ad hoc work, such as rechecking a single list,
// that must not overlap a scheduled cycle.
func (jm *JobManager) RunNow(id, name string, fn func() error) error {
	jm.mu.Lock()
	if _, ok := jm.status[id]; !ok {
		jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
	}
	jm.mu.Unlock()

	_, status, err := jm.begin(id)
	if err != nil {
		return err
	}
	return jm.execute(id, status, fn)
}

func (jm *JobManager) begin(id string) (jobTask, *JobStatus, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.running {
		return nil, nil, ErrJobRunning
	}
	status, ok := jm.status[id]
	if !ok {
		return nil, nil, fmt.Errorf("job '%s' not found", id)
	}
	jm.running = true
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	return jm.jobs[id], status, nil
}

func (jm *JobManager) execute(id string, status *JobStatus, fn func() error) (err error) {
	log.Info("Starting job", "job", id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "job", id, "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}

		jm.mu.Lock()
		status.EndTime = time.Now()
		if err != nil {
			status.Status = "failed"
			status.Message = err.Error()
		} else {
			status.Status = "success"
			status.Message = "Job completed successfully."
		}
		jm.running = false
		jm.mu.Unlock()
		log.Info("Finished job", "job", id, "status", status.Status, "took", status.EndTime.Sub(status.StartTime))
	}()
	return fn()
}

// GetStatus returns a snapshot of every known job, ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Running reports whether a job currently holds the lock.
func (jm *JobManager) Running() bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.running
}
