package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
)

type stubWorker struct {
	busy    bool
	current string
}

func (s *stubWorker) Busy() bool         { return s.busy }
func (s *stubWorker) CurrentJob() string { return s.current }

func setupAPI(t *testing.T) (*API, *httptest.Server) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	encoded, err := shared.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	key, err := shared.ParseKey(encoded)
	if err != nil {
		t.Fatal(err)
	}

	api := &API{
		Jobs:      store.NewJobStore(db),
		Accounts:  store.NewAccountStore(db, key),
		Schedules: store.NewScheduleStore(db),
		Worker:    &stubWorker{},
	}

	router := NewBasicRouter()
	router.Use(Logging(shared.NewLogger(io.Discard)), Recover(shared.NewLogger(io.Discard)))
	api.Register(router)
	router.Handler(HealthHandler{})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return api, srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestJobEndpoints(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		_, srv := setupAPI(t)

		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/jobs",
			`{"start_date":"2024-01-01","end_date":"2024-01-07","filters":["run"]}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
		}

		id, _ := body["id"].(string)
		if id == "" || body["status"] != "pending" {
			t.Fatalf("unexpected job body %v", body)
		}

		resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/jobs/"+id, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["id"] != id {
			t.Errorf("round trip id mismatch: %v", body["id"])
		}
	})

	t.Run("InvalidRange", func(t *testing.T) {
		_, srv := setupAPI(t)

		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/jobs",
			`{"start_date":"2024-01-07","end_date":"2024-01-01"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("inverted range should be rejected, got %d", resp.StatusCode)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, srv := setupAPI(t)

		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/nope", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("ListByStatus", func(t *testing.T) {
		api, srv := setupAPI(t)

		for i := 0; i < 2; i++ {
			rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
			if err := api.Jobs.Create(&models.Job{Range: rng}); err != nil {
				t.Fatal(err)
			}
		}

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/jobs?status=pending", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var jobs []models.Job
		if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(jobs) != 2 {
			t.Errorf("expected 2 pending jobs, got %d", len(jobs))
		}

		resp2, _ := doJSON(t, http.MethodGet, srv.URL+"/api/jobs?status=bogus", "")
		if resp2.StatusCode != http.StatusBadRequest {
			t.Errorf("unknown status should be rejected, got %d", resp2.StatusCode)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		api, srv := setupAPI(t)

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		job := &models.Job{Range: rng}
		if err := api.Jobs.Create(job); err != nil {
			t.Fatal(err)
		}

		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+job.ID+"/cancel", "")
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
		if body["cancel_requested"] != true {
			t.Errorf("cancel flag should be set, got %v", body)
		}
	})

	t.Run("Items", func(t *testing.T) {
		api, srv := setupAPI(t)

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		job := &models.Job{Range: rng}
		if err := api.Jobs.Create(job); err != nil {
			t.Fatal(err)
		}
		if err := api.Jobs.RecordItem(job.ID, 0, models.ItemOutcome{
			SourceID: "a1", Result: models.OutcomeSucceeded, DestinationID: "g1",
		}); err != nil {
			t.Fatal(err)
		}

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/jobs/"+job.ID+"/items", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var items []models.ItemOutcome
		if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].SourceID != "a1" {
			t.Errorf("unexpected items %v", items)
		}
	})
}

func TestAccountEndpoints(t *testing.T) {
	_, srv := setupAPI(t)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/accounts/coros",
		`{"email":"user@example.com","password":"secret"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/accounts", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/accounts/coros", nil)
	deleteResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	deleteResp.Body.Close()
	if deleteResp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", deleteResp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/accounts/coros", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double delete should 404, got %d", resp.StatusCode)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	_, srv := setupAPI(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/schedules",
		`{"cron":"0 3 * * *","lookback_days":7,"enabled":true}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/schedules",
		`{"cron":"banana","lookback_days":7}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid cron should be rejected, got %d", resp.StatusCode)
	}
}

func TestWorkerAndHealth(t *testing.T) {
	api, srv := setupAPI(t)
	api.Worker = &stubWorker{busy: true, current: "job-1"}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/worker", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["busy"] != true || body["current_job"] != "job-1" {
		t.Errorf("unexpected worker status %v", body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health check failed: %d %v", resp.StatusCode, body)
	}
}

func TestRouterMethodMatching(t *testing.T) {
	_, srv := setupAPI(t)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/jobs", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for wrong method, got %d", resp.StatusCode)
	}
}
