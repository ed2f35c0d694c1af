package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/scheduler"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
)

// WorkerStatus exposes what the background worker is doing, for the status
// endpoint.
type WorkerStatus interface {
	Busy() bool
	CurrentJob() string
}

// API is the JSON controller over the job, account, and schedule stores. It
// only reads and writes store state; transfers run in the worker.
type API struct {
	Jobs      *store.JobStore
	Accounts  *store.AccountStore
	Schedules *store.ScheduleStore
	Worker    WorkerStatus
}

// Register wires all API endpoints onto the router.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/api/jobs", http.HandlerFunc(a.createJob))
	r.Handle(http.MethodGet, "/api/jobs", http.HandlerFunc(a.listJobs))
	r.Handle(http.MethodGet, "/api/jobs/{id}", http.HandlerFunc(a.getJob))
	r.Handle(http.MethodGet, "/api/jobs/{id}/items", http.HandlerFunc(a.listItems))
	r.Handle(http.MethodPost, "/api/jobs/{id}/cancel", http.HandlerFunc(a.cancelJob))
	r.Handle(http.MethodGet, "/api/worker", http.HandlerFunc(a.workerStatus))
	r.Handle(http.MethodGet, "/api/accounts", http.HandlerFunc(a.listAccounts))
	r.Handle(http.MethodPut, "/api/accounts/{platform}", http.HandlerFunc(a.saveAccount))
	r.Handle(http.MethodDelete, "/api/accounts/{platform}", http.HandlerFunc(a.deleteAccount))
	r.Handle(http.MethodGet, "/api/schedules", http.HandlerFunc(a.listSchedules))
	r.Handle(http.MethodPost, "/api/schedules", http.HandlerFunc(a.createSchedule))
	r.Handle(http.MethodDelete, "/api/schedules/{id}", http.HandlerFunc(a.deleteSchedule))
}

// CreateJobRequest is the body for POST /api/jobs.
type CreateJobRequest struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Filters   []string `json:"filters,omitempty"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rng, err := models.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &models.Job{Range: rng, Filters: req.Filters}
	if err := a.Jobs.Create(job); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	jobs, err := a.Jobs.List(status, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.Jobs.Get(id); err != nil {
		writeStoreError(w, err)
		return
	}

	items, err := a.Jobs.Items(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if items == nil {
		items = []models.ItemOutcome{}
	}

	writeJSON(w, http.StatusOK, items)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.Jobs.RequestCancel(id); err != nil {
		writeStoreError(w, err)
		return
	}

	job, err := a.Jobs.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (a *API) workerStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"busy": false, "current_job": ""}
	if a.Worker != nil {
		status["busy"] = a.Worker.Busy()
		status["current_job"] = a.Worker.CurrentJob()
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.Accounts.List()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// SaveAccountRequest is the body for PUT /api/accounts/{platform}.
type SaveAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) saveAccount(w http.ResponseWriter, r *http.Request) {
	var req SaveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account := &models.Account{
		Platform: r.PathValue("platform"),
		Email:    req.Email,
		Password: req.Password,
	}
	if err := a.Accounts.Save(account); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (a *API) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := a.Accounts.Delete(r.PathValue("platform")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.Schedules.List(false)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if rules == nil {
		rules = []*models.ScheduleRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// CreateScheduleRequest is the body for POST /api/schedules.
type CreateScheduleRequest struct {
	Cron         string   `json:"cron"`
	LookbackDays int      `json:"lookback_days"`
	Filters      []string `json:"filters,omitempty"`
	Enabled      bool     `json:"enabled"`
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := scheduler.ValidateCron(req.Cron); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
		return
	}

	rule := &models.ScheduleRule{
		Cron:         req.Cron,
		LookbackDays: req.LookbackDays,
		Filters:      req.Filters,
		Enabled:      req.Enabled,
	}
	if err := a.Schedules.Create(rule); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := a.Schedules.Delete(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports liveness. Implements [Handler].
type HealthHandler struct{}

func (HealthHandler) Routes() []string { return []string{"/api/health"} }

func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrJobNotFound),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
