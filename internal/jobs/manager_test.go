package jobs_test

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mylist-go/internal/config"
	"github.com/vrsandeep/mylist-go/internal/jobs"
	"github.com/vrsandeep/mylist-go/internal/refresh"
	"github.com/vrsandeep/mylist-go/internal/websocket"
)

type fakeJobContext struct {
	db     *sql.DB
	cfg    *config.Config
	ws     *websocket.Hub
	jobMgr *jobs.JobManager
}

func (f *fakeJobContext) DB() *sql.DB                         { return f.db }
func (f *fakeJobContext) Config() *config.Config              { return f.cfg }
func (f *fakeJobContext) WsHub() *websocket.Hub               { return f.ws }
func (f *fakeJobContext) JobManager() *jobs.JobManager        { return f.jobMgr }
func (f *fakeJobContext) Orchestrator() *refresh.Orchestrator { return nil }

func newFakeContext() *fakeJobContext {
	ctx := &fakeJobContext{cfg: &config.Config{}, ws: websocket.NewHub()}
	ctx.jobMgr = jobs.NewManager(ctx)
	return ctx
}

// waitIdle polls until the manager has released its lock.
func waitIdle(t *testing.T, mgr *jobs.JobManager) {
	t.Helper()
	require.Eventually(t, func() bool { return !mgr.Running() }, time.Second, 5*time.Millisecond)
}

func statusOf(mgr *jobs.JobManager, id string) jobs.JobStatus {
	for _, s := range mgr.GetStatus() {
		if s.ID == id {
			return s
		}
	}
	return jobs.JobStatus{}
}

func TestManager_NewManager(t *testing.T) {
	mgr := newFakeContext().jobMgr
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := newFakeContext().jobMgr
	mgr.Register("jobB", "Job B", func(ctx jobs.JobContext) error { return nil })
	mgr.Register("jobA", "Job A", func(ctx jobs.JobContext) error { return nil })

	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "jobB", statuses[1].ID)
	assert.Equal(t, "idle", statuses[0].Status)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	done := make(chan struct{})
	mgr.Register("jobX", "Job X", func(ctx jobs.JobContext) error {
		close(done)
		return nil
	})

	require.NoError(t, mgr.RunJob("jobX", ctx))
	<-done
	waitIdle(t, mgr)
	assert.Equal(t, "success", statusOf(mgr, "jobX").Status)
}

func TestManager_RunJob_ErrorMarksFailed(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	mgr.Register("jobE", "Job E", func(ctx jobs.JobContext) error { return errors.New("remote down") })

	require.NoError(t, mgr.RunJob("jobE", ctx))
	waitIdle(t, mgr)
	status := statusOf(mgr, "jobE")
	assert.Equal(t, "failed", status.Status)
	assert.Equal(t, "remote down", status.Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(ctx jobs.JobContext) error { <-block; return nil })
	mgr.Register("jobZ", "Job Z", func(ctx jobs.JobContext) error { return nil })

	require.NoError(t, mgr.RunJob("jobY", ctx))
	assert.ErrorIs(t, mgr.RunJob("jobY", ctx), jobs.ErrJobRunning)
	assert.ErrorIs(t, mgr.RunJob("jobZ", ctx), jobs.ErrJobRunning, "a different job is refused too")
	assert.ErrorIs(t, mgr.RunNow("adhoc", "Ad hoc", func() error { return nil }), jobs.ErrJobRunning)

	close(block)
	waitIdle(t, mgr)
	assert.Equal(t, "idle", statusOf(mgr, "jobZ").Status)
}

func TestManager_RunJob_NotFound(t *testing.T) {
	ctx := newFakeContext()
	assert.Error(t, ctx.jobMgr.RunJob("nojob", ctx))
	assert.False(t, ctx.jobMgr.Running())
}

func TestManager_RunJob_Panic(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	mgr.Register("panicJob", "Panic Job", func(ctx jobs.JobContext) error { panic("fail") })

	require.NoError(t, mgr.RunJob("panicJob", ctx))
	waitIdle(t, mgr)
	status := statusOf(mgr, "panicJob")
	assert.Equal(t, "failed", status.Status)
	assert.Contains(t, status.Message, "panicked")
}

func TestManager_RunNow(t *testing.T) {
	mgr := newFakeContext().jobMgr

	err := mgr.RunNow("adhoc", "Ad hoc", func() error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")
	assert.False(t, mgr.Running())
	assert.Equal(t, "failed", statusOf(mgr, "adhoc").Status)

	require.NoError(t, mgr.RunNow("adhoc", "Ad hoc", func() error { return nil }))
	assert.Equal(t, "success", statusOf(mgr, "adhoc").Status)
}

func TestManager_Concurrency(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	block := make(chan struct{})
	var mu sync.Mutex
	var count int
	mgr.Register("jobC", "Job C", func(ctx jobs.JobContext) error {
		mu.Lock()
		count++
		mu.Unlock()
		<-block
		return nil
	})

	var started sync.WaitGroup
	var accepted int
	var acceptedMu sync.Mutex
	for i := 0; i < 5; i++ {
		started.Add(1)
		go func() {
			defer started.Done()
			if mgr.RunJob("jobC", ctx) == nil {
				acceptedMu.Lock()
				accepted++
				acceptedMu.Unlock()
			}
		}()
	}
	started.Wait()
	close(block)
	waitIdle(t, mgr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, count, "job should only run once concurrently")
}
