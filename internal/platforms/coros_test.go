package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
)

func newTestCoros(t *testing.T, handler http.Handler) (*CorosClient, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewCorosClient(CorosOpts{
		Email:    "user@example.com",
		Password: "secret",
		BaseURL:  srv.URL,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return client, srv
}

func corosReply(w http.ResponseWriter, result string, data any) {
	payload := map[string]any{"result": result, "message": "", "data": data}
	json.NewEncoder(w).Encode(payload)
}

func TestNewCorosClient(t *testing.T) {
	if _, err := NewCorosClient(CorosOpts{Email: "a@b.c"}); !errors.Is(err, shared.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestCorosAuthenticate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotPwd string
		client, _ := newTestCoros(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/account/login" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			gotPwd, _ = body["pwd"].(string)
			corosReply(w, "0000", map[string]string{"accessToken": "tok-123", "userId": "u1"})
		}))

		if err := client.Authenticate(context.Background()); err != nil {
			t.Fatalf("authenticate failed: %v", err)
		}
		if client.accessToken != "tok-123" {
			t.Errorf("expected access token to be stored, got %q", client.accessToken)
		}
		// md5("secret")
		if gotPwd != "5ebe2294ecd0e0f08eab7690d2a6ee69" {
			t.Errorf("password should be md5 hashed, got %q", gotPwd)
		}
	})

	t.Run("BadCredentials", func(t *testing.T) {
		client, _ := newTestCoros(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corosReply(w, "1001", nil)
		}))

		err := client.Authenticate(context.Background())
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}

func TestCorosListActivities(t *testing.T) {
	t.Run("Paged", func(t *testing.T) {
		// Two full pages then a partial one; order must be preserved.
		client, _ := newTestCoros(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/account/login" {
				corosReply(w, "0000", map[string]string{"accessToken": "tok"})
				return
			}

			page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
			count := corosPageSize
			if page == 3 {
				count = 2
			}

			var list []map[string]any
			for i := 0; i < count; i++ {
				list = append(list, map[string]any{
					"labelId":   fmt.Sprintf("a-%d-%d", page, i),
					"name":      "Morning Run",
					"sportType": 100,
					"startTime": 1704096000,
				})
			}
			corosReply(w, "0000", map[string]any{"dataList": list})
		}))

		if err := client.Authenticate(context.Background()); err != nil {
			t.Fatal(err)
		}

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		refs, err := client.ListActivities(context.Background(), rng, nil)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}

		if len(refs) != 2*corosPageSize+2 {
			t.Fatalf("expected %d activities, got %d", 2*corosPageSize+2, len(refs))
		}
		if refs[0].ID != "a-1-0" {
			t.Errorf("listing order not preserved: first is %s", refs[0].ID)
		}
		if refs[0].Type != "run" {
			t.Errorf("expected sport type 'run', got %q", refs[0].Type)
		}
		if refs[0].StartTime.IsZero() {
			t.Error("start time should be parsed")
		}
	})

	t.Run("RequiresAuth", func(t *testing.T) {
		client, _ := newTestCoros(t, http.NewServeMux())
		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")

		_, err := client.ListActivities(context.Background(), rng, nil)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("UnknownFilter", func(t *testing.T) {
		client, _ := newTestCoros(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corosReply(w, "0000", map[string]string{"accessToken": "tok"})
		}))
		client.Authenticate(context.Background())

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		_, err := client.ListActivities(context.Background(), rng, []string{"juggling"})
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation for unknown type, got %v", err)
		}
	})
}

func TestCorosFetchActivity(t *testing.T) {
	var fileURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/account/login", func(w http.ResponseWriter, r *http.Request) {
		corosReply(w, "0000", map[string]string{"accessToken": "tok"})
	})
	mux.HandleFunc("/activity/detail/download", func(w http.ResponseWriter, r *http.Request) {
		corosReply(w, "0000", map[string]string{"fileUrl": fileURL})
	})
	mux.HandleFunc("/files/a1.fit", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("FITDATA"))
	})

	client, srv := newTestCoros(t, mux)
	fileURL = srv.URL + "/files/a1.fit"

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	ref := models.ActivityRef{ID: "a1", Type: "run"}

	t.Run("Fit", func(t *testing.T) {
		payload, err := client.FetchActivity(context.Background(), ref, "fit")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if string(payload) != "FITDATA" {
			t.Errorf("unexpected payload %q", payload)
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		_, err := client.FetchActivity(context.Background(), ref, "csv")
		if !errors.Is(err, shared.ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
	})
}

func TestBuildModeList(t *testing.T) {
	modes, err := buildModeList([]string{"run", "bike", "301"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if modes != "100,200,301" {
		t.Errorf("expected '100,200,301', got %q", modes)
	}

	if _, err := buildModeList([]string{"skydiving"}); err == nil {
		t.Error("expected error for unknown type name")
	}
}

func TestFixTCXExtensions(t *testing.T) {
	in := []byte(`<Trackpoint><Extensions><Speed>3.2</Speed></Extensions></Trackpoint>`)
	out := string(fixTCXExtensions(in))

	want := `<Trackpoint><Extensions><ns3:TPX><ns3:Speed>3.2</ns3:Speed></ns3:TPX></Extensions></Trackpoint>`
	if out != want {
		t.Errorf("expected %s, got %s", want, out)
	}
}

func TestCorosDoJSON(t *testing.T) {
	t.Run("ServerError", func(t *testing.T) {
		client, _ := newTestCoros(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		err := client.doJSON(context.Background(), http.MethodGet, "/activity/query", nil, nil, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("EnvelopeError", func(t *testing.T) {
		client, _ := newTestCoros(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corosReply(w, "1103", nil)
		}))

		err := client.doJSON(context.Background(), http.MethodGet, "/activity/query", nil, nil, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}
