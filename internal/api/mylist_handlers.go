package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/mylist-go/internal/jobs"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/refresh"
	"github.com/vrsandeep/mylist-go/internal/store"
	"github.com/vrsandeep/mylist-go/internal/util"
)

const refreshListJobID = "mylist-refresh-list"

// listFromRequest resolves the {listID} URL parameter, writing the error
// response itself when the list cannot be found.
func (s *Server) listFromRequest(w http.ResponseWriter, r *http.Request) (*models.TrackedList, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "listID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid list ID")
		return nil, false
	}
	list, err := s.store.GetListByID(id)
	if errors.Is(err, store.ErrListNotFound) {
		RespondWithError(w, http.StatusNotFound, "List not found")
		return nil, false
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve list")
		return nil, false
	}
	return list, true
}

func (s *Server) handleListMylists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.store.GetAllLists()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve lists")
		return
	}
	if lists == nil {
		lists = []*models.TrackedList{}
	}
	RespondWithJSON(w, http.StatusOK, lists)
}

func (s *Server) handleGetMylist(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateMylist(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL            string `json:"url"`
		OwnerName      string `json:"owner_name"`
		CollectionName string `json:"collection_name"`
		CheckInterval  string `json:"check_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	listURL, err := models.ResolveListURL(s.app.Config().Site.BaseURL, payload.URL)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := models.ListKindFromURL(listURL)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.CheckInterval != "" {
		if _, err := util.ParseInterval(payload.CheckInterval); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	list, err := s.store.CreateList(&models.TrackedList{
		URL:            listURL,
		OwnerName:      payload.OwnerName,
		CollectionName: payload.CollectionName,
		Kind:           kind,
		CheckInterval:  payload.CheckInterval,
	})
	if errors.Is(err, store.ErrDuplicateList) {
		RespondWithError(w, http.StatusConflict, "List is already tracked")
		return
	}
	if err != nil {
		log.Error("Failed to create list", "url", listURL, "err", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to create list")
		return
	}
	RespondWithJSON(w, http.StatusCreated, list)
}

func (s *Server) handleDeleteMylist(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteList(list.ID); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to delete list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwapMylists(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		A int64 `json:"a"`
		B int64 `json:"b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	err := s.store.SwapListIDs(payload.A, payload.B)
	if errors.Is(err, store.ErrListNotFound) {
		RespondWithError(w, http.StatusNotFound, "List not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to swap lists")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateInterval(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}
	var payload struct {
		CheckInterval string `json:"check_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if _, err := util.ParseInterval(payload.CheckInterval); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateCheckInterval(list.URL, payload.CheckInterval); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to update interval")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}
	videos, err := s.store.GetVideos(list.URL)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve videos")
		return
	}
	if videos == nil {
		videos = []*models.VideoRecord{}
	}
	RespondWithJSON(w, http.StatusOK, videos)
}

func (s *Server) handleSetWatchStatus(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}
	var payload struct {
		Status models.WatchStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Status != models.StatusWatched && payload.Status != models.StatusUnwatched {
		RespondWithError(w, http.StatusBadRequest, "Status must be 'watched' or 'unwatched'")
		return
	}
	err := s.store.SetWatchStatus(list.URL, chi.URLParam(r, "videoID"), payload.Status)
	if errors.Is(err, sql.ErrNoRows) {
		RespondWithError(w, http.StatusNotFound, "Video not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to update watch status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllWatched(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.MarkAllWatched(list.URL); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to mark videos as watched")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshList rechecks one list immediately and returns the cycle
// report. It shares the job lock with the scheduled cycles.
func (s *Server) handleRefreshList(w http.ResponseWriter, r *http.Request) {
	list, ok := s.listFromRequest(w, r)
	if !ok {
		return
	}

	// A client that disconnects mid-cycle must not cancel the merge and
	// count the list as failed.
	ctx := context.WithoutCancel(r.Context())
	var report *refresh.Report
	err := s.app.JobManager().RunNow(refreshListJobID, "Refresh single list", func() error {
		orch := s.app.Orchestrator().WithProgress(jobs.NewHubProgress(s.app.WsHub(), refreshListJobID))
		var err error
		report, err = orch.RunLists(ctx, []string{list.URL})
		return err
	})
	if errors.Is(err, jobs.ErrJobRunning) {
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to refresh list")
		return
	}
	RespondWithJSON(w, http.StatusOK, report)
}
