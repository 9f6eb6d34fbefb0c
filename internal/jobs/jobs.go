package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron"

	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/refresh"
	"github.com/vrsandeep/mylist-go/internal/websocket"
)

const (
	RefreshAllJobID = "mylist-refresh-all"
	RefreshDueJobID = "mylist-refresh-due"
)

// RegisterRefreshJobs adds the refresh cycles to the manager.
func RegisterRefreshJobs(jm *JobManager) {
	jm.Register(RefreshAllJobID, "Refresh all lists", RunRefreshAll)
	jm.Register(RefreshDueJobID, "Refresh due lists", RunRefreshDue)
}

// StartJobs starts the background job scheduler. It returns nil when
// scheduled refresh is disabled.
func StartJobs(app JobContext) *gocron.Scheduler {
	cfg := app.Config().Refresh
	if !cfg.Enabled || cfg.TickMinutes <= 0 {
		log.Info("Scheduled refresh is disabled")
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	log.Info("Scheduling job", "job", RefreshDueJobID, "every_minutes", cfg.TickMinutes)
	_, err := s.Every(cfg.TickMinutes).Minutes().Do(func() {
		// Submit through the manager so a manual run is never overlapped.
		err := app.JobManager().RunJob(RefreshDueJobID, app)
		if err != nil {
			log.Debug("Scheduled job could not start", "job", RefreshDueJobID, "err", err)
		}
	})
	if err != nil {
		log.Error("Error scheduling job", "job", RefreshDueJobID, "err", err)
		return nil
	}

	log.Info("Starting background job scheduler...")
	s.StartAsync()
	return s
}

// RunRefreshAll refreshes every tracked list.
func RunRefreshAll(app JobContext) error {
	return runRefresh(app, RefreshAllJobID, refresh.ModeFull)
}

// RunRefreshDue refreshes the lists whose check interval has elapsed.
func RunRefreshDue(app JobContext) error {
	return runRefresh(app, RefreshDueJobID, refresh.ModeDue)
}

func runRefresh(app JobContext, jobID string, mode refresh.Mode) error {
	hub := app.WsHub()
	orch := app.Orchestrator().WithProgress(NewHubProgress(hub, jobID))

	report, err := orch.Run(context.Background(), mode)
	if err != nil {
		sendProgress(hub, models.ProgressUpdate{JobID: jobID, Message: "Refresh failed: " + err.Error(), Done: true})
		return err
	}

	sendProgress(hub, models.ProgressUpdate{
		JobID:     jobID,
		Message:   SummaryMessage(report),
		Completed: report.Targeted,
		Total:     report.Targeted,
		Progress:  100,
		Done:      true,
	})
	return nil
}

// SummaryMessage renders a one-line description of a finished cycle.
func SummaryMessage(report *refresh.Report) string {
	return fmt.Sprintf("Checked %d lists: %d succeeded, %d failed, %d new videos.",
		report.Targeted, report.Succeeded, report.Failed, report.NewVideos)
}

// HubProgress forwards phase progress to websocket clients.
type HubProgress struct {
	hub   *websocket.Hub
	jobID string
}

func NewHubProgress(hub *websocket.Hub, jobID string) *HubProgress {
	return &HubProgress{hub: hub, jobID: jobID}
}

func (p *HubProgress) Report(phase refresh.Phase, listURL string, completed, total int) {
	var pct float64
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	sendProgress(p.hub, models.ProgressUpdate{
		JobID:     p.jobID,
		Phase:     string(phase),
		ListURL:   listURL,
		Message:   fmt.Sprintf("%s %d/%d", phase, completed, total),
		Completed: completed,
		Total:     total,
		Progress:  pct,
	})
}

func sendProgress(hub *websocket.Hub, update models.ProgressUpdate) {
	if hub == nil {
		return
	}
	hub.BroadcastJSON(update)
}
