package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/equipment-status/internal/equipment"
	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
	"github.com/nerrad567/equipment-status/internal/infrastructure/database"
	"github.com/nerrad567/equipment-status/internal/infrastructure/logging"
	_ "github.com/nerrad567/equipment-status/migrations"
)

// testServer creates a Server backed by a migrated in-memory SQLite store.
func testServer(t *testing.T) *Server {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store, err := equipment.NewSQLiteStore(context.Background(), db.DB, equipment.StoreOptions{})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	return newServerWithStore(t, store, nil)
}

func newServerWithStore(t *testing.T, store equipment.Store, components map[string]HealthChecker) *Server {
	t.Helper()

	svc := equipment.NewService(store, equipment.NewValidator(equipment.DefaultStateSet(), time.UTC))
	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1"},
		Logger:     logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard),
		Service:    svc,
		Components: components,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func report(t *testing.T, srv *Server, id, state string, ts time.Time) {
	t.Helper()

	body := fmt.Sprintf(`{"id":%q,"state":%q,"timestamp":%q}`, id, state, ts.Format(time.RFC3339))
	if rec := do(t, srv, http.MethodPost, "/equipment", body); rec.Code != http.StatusCreated {
		t.Fatalf("POST /equipment %s = %d, body %s", body, rec.Code, rec.Body.String())
	}
}

func decodeStates(t *testing.T, rec *httptest.ResponseRecorder) []stateResponse {
	t.Helper()

	var states []stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&states); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return states
}

func rangePath(prefix string, from, to time.Time) string {
	return fmt.Sprintf("%s/from/%s/to/%s", prefix, from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, status, rec.Body.String())
	}
	var apiErr Error
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if apiErr.Code != code || apiErr.Status != status {
		t.Errorf("error body = %+v, want code %q", apiErr, code)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	logger := logging.NewWithWriter(config.LoggingConfig{}, "test", io.Discard)
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New() without service should fail")
	}
}

func TestLatest_EmptyStore(t *testing.T) {
	srv := testServer(t)

	rec := do(t, srv, http.MethodGet, "/equipment", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestReport_Accepted(t *testing.T) {
	srv := testServer(t)
	ts := time.Now().Add(-time.Hour).Truncate(time.Second).In(time.FixedZone("", 2*3600))

	body := fmt.Sprintf(`{"id":" press_1 ","state":"running","timestamp":%q}`, ts.Format(time.RFC3339))
	rec := do(t, srv, http.MethodPost, "/equipment", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var got stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	want := stateResponse{ID: "PRESS_1", State: "Running", Timestamp: ts.Format(time.RFC3339)}
	if got != want {
		t.Errorf("response = %+v, want %+v", got, want)
	}
}

func TestReport_Rejected(t *testing.T) {
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"id":`, CodeInvalidBody},
		{"missing state", fmt.Sprintf(`{"id":"PRESS_1","timestamp":%q}`, past), CodeInvalidBody},
		{"blank id", fmt.Sprintf(`{"id":"   ","state":"Running","timestamp":%q}`, past), CodeRejectedState},
		{"unknown state", fmt.Sprintf(`{"id":"PRESS_1","state":"Exploded","timestamp":%q}`, past), CodeRejectedState},
		{"future timestamp", fmt.Sprintf(`{"id":"PRESS_1","state":"Running","timestamp":%q}`, future), CodeRejectedState},
		{"unparsable timestamp", `{"id":"PRESS_1","state":"Running","timestamp":"yesterday"}`, CodeRejectedState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t)

			rec := do(t, srv, http.MethodPost, "/equipment", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}

			var apiErr Error
			if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if apiErr.Code != tt.wantCode || apiErr.Status != http.StatusBadRequest {
				t.Errorf("error body = %+v", apiErr)
			}

			if states := decodeStates(t, do(t, srv, http.MethodGet, "/equipment", "")); len(states) != 0 {
				t.Errorf("rejected report was stored: %+v", states)
			}
		})
	}
}

func TestLatest_OnePerEquipment(t *testing.T) {
	srv := testServer(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second).UTC()

	report(t, srv, "PRESS_1", "Stopped", base)
	report(t, srv, "press_1", "Running", base.Add(10*time.Minute))
	report(t, srv, "PRESS_1", "Transitioning", base.Add(5*time.Minute))
	report(t, srv, "LATHE_2", "Stopped", base.Add(time.Minute))

	states := decodeStates(t, do(t, srv, http.MethodGet, "/equipment", ""))

	want := []stateResponse{
		{ID: "LATHE_2", State: "Stopped", Timestamp: base.Add(time.Minute).Format(time.RFC3339)},
		{ID: "PRESS_1", State: "Running", Timestamp: base.Add(10 * time.Minute).Format(time.RFC3339)},
	}
	if len(states) != len(want) {
		t.Fatalf("states = %+v, want %+v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %+v, want %+v", i, states[i], want[i])
		}
	}
}

func TestHistory(t *testing.T) {
	srv := testServer(t)
	base := time.Now().Add(-2 * time.Hour).Truncate(time.Second).UTC()

	report(t, srv, "PRESS_1", "Stopped", base)
	report(t, srv, "LATHE_2", "Running", base.Add(10*time.Minute))
	report(t, srv, "PRESS_1", "Running", base.Add(20*time.Minute))

	t.Run("inclusive range newest first", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, rangePath("/equipment/history", base, base.Add(20*time.Minute)), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		states := decodeStates(t, rec)
		if len(states) != 3 {
			t.Fatalf("got %d states, want 3", len(states))
		}
		if states[0].State != "Running" || states[0].ID != "PRESS_1" || states[2].State != "Stopped" {
			t.Errorf("unexpected order: %+v", states)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, rangePath("/equipment/history", base.Add(-time.Hour), base.Add(-time.Minute)), "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
	})

	t.Run("from after to", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, rangePath("/equipment/history", base.Add(time.Hour), base), "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unparsable bound", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/equipment/history/from/soon/to/later", "")
		assertErrorCode(t, rec, http.StatusBadRequest, CodeInvalidPath)
	})

	t.Run("escaped offset", func(t *testing.T) {
		zone := time.FixedZone("", 2*3600)
		from := strings.ReplaceAll(base.In(zone).Format(time.RFC3339), "+", "%2B")
		to := strings.ReplaceAll(base.Add(time.Minute).In(zone).Format(time.RFC3339), "+", "%2B")

		rec := do(t, srv, http.MethodGet, "/equipment/history/from/"+from+"/to/"+to, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if states := decodeStates(t, rec); len(states) != 1 || states[0].ID != "PRESS_1" {
			t.Errorf("states = %+v, want the first PRESS_1 report", states)
		}
	})
}

func TestHistoryByIdentifier(t *testing.T) {
	srv := testServer(t)
	base := time.Now().Add(-2 * time.Hour).Truncate(time.Second).UTC()

	report(t, srv, "PRESS_1", "Stopped", base)
	report(t, srv, "LATHE_2", "Running", base.Add(10*time.Minute))
	report(t, srv, "PRESS_1", "Running", base.Add(20*time.Minute))

	t.Run("case-insensitive identifier", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, rangePath("/equipment/history/press_1", base, base.Add(time.Hour)), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		states := decodeStates(t, rec)
		if len(states) != 2 {
			t.Fatalf("got %d states, want 2", len(states))
		}
		for _, s := range states {
			if s.ID != "PRESS_1" {
				t.Errorf("unexpected equipment %q", s.ID)
			}
		}
	})

	t.Run("unknown identifier", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, rangePath("/equipment/history/MILL_9", base, base.Add(time.Hour)), "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("blank identifier", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, rangePath("/equipment/history/%20", base, base.Add(time.Hour)), "")
		assertErrorCode(t, rec, http.StatusBadRequest, CodeInvalidPath)
	})
}

func TestVersionedMount(t *testing.T) {
	srv := testServer(t)
	report(t, srv, "PRESS_1", "Running", time.Now().Add(-time.Minute))

	rec := do(t, srv, http.MethodGet, "/api/v1/equipment", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if states := decodeStates(t, rec); len(states) != 1 {
		t.Errorf("got %d states, want 1", len(states))
	}
}

type failingStore struct {
	err error
}

func (f failingStore) Insert(context.Context, equipment.EquipmentState) error { return f.err }
func (f failingStore) Latest(context.Context) ([]equipment.EquipmentState, error) {
	return nil, f.err
}
func (f failingStore) History(context.Context, time.Time, time.Time) ([]equipment.EquipmentState, error) {
	return nil, f.err
}
func (f failingStore) HistoryByIdentifier(context.Context, string, time.Time, time.Time) ([]equipment.EquipmentState, error) {
	return nil, f.err
}
func (f failingStore) HealthCheck(context.Context) error { return f.err }

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestStoreFailure(t *testing.T) {
	srv := newServerWithStore(t, failingStore{err: errors.New("disk on fire")}, nil)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodGet, "/equipment", ""},
		{http.MethodPost, "/equipment", fmt.Sprintf(`{"id":"PRESS_1","state":"Running","timestamp":%q}`, past)},
		{http.MethodGet, "/equipment/history/from/2025-01-01/to/2025-02-01", ""},
		{http.MethodGet, "/equipment/history/PRESS_1/from/2025-01-01/to/2025-02-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			var apiErr Error
			if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil || apiErr.Code != CodeStoreFailure {
				t.Errorf("error body = %+v (%v)", apiErr, err)
			}
			if strings.Contains(apiErr.Message, "disk on fire") {
				t.Error("storage error leaked to client")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("broker gone") })

	tests := []struct {
		name       string
		store      equipment.Store
		components map[string]HealthChecker
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, map[string]HealthChecker{"mqtt": ok}, http.StatusOK, "ok"},
		{"component down", nil, map[string]HealthChecker{"mqtt": down}, http.StatusOK, "degraded"},
		{"store down", failingStore{err: errors.New("locked")}, nil, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srv *Server
			if tt.store == nil {
				srv = testServer(t)
				srv.components = tt.components
			} else {
				srv = newServerWithStore(t, tt.store, tt.components)
			}

			for _, path := range []string{"/health", "/api/v1/health"} {
				rec := do(t, srv, http.MethodGet, path, "")
				if rec.Code != tt.wantCode {
					t.Errorf("%s status = %d, want %d", path, rec.Code, tt.wantCode)
				}
				var resp healthResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decoding: %v", err)
				}
				if resp.Status != tt.wantStatus || resp.Version != "test" {
					t.Errorf("%s body = %+v", path, resp)
				}
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	srv := testServer(t)

	t.Run("generates request id", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/health", "")
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("X-Request-ID not set")
		}
	})

	t.Run("echoes request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
			t.Errorf("X-Request-ID = %q, want abc-123", got)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/equipment", nil)
		req.Header.Set("Origin", "http://dashboard.local")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
			t.Error("Access-Control-Allow-Origin not set on preflight")
		}
	})

	t.Run("body limit", func(t *testing.T) {
		small := newServerWithStore(t, failingStore{}, nil)
		small.cfg.MaxBodyBytes = 16
		body := `{"id":"PRESS_1","state":"Running","timestamp":"2025-01-01T00:00:00Z"}`
		assertErrorCode(t, do(t, small, http.MethodPost, "/equipment", body), http.StatusRequestEntityTooLarge, CodeInvalidBody)

		// Without a Content-Length the limit trips while decoding.
		req := httptest.NewRequest(http.MethodPost, "/equipment", io.NopCloser(strings.NewReader(body)))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		small.Handler().ServeHTTP(rec, req)
		assertErrorCode(t, rec, http.StatusBadRequest, CodeInvalidBody)
	})

	t.Run("replaces unusable request id", func(t *testing.T) {
		for _, id := range []string{strings.Repeat("x", maxRequestIDLen+1), "has space", "line\nbreak"} {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("X-Request-ID", id)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if got := rec.Header().Get("X-Request-ID"); got == id || got == "" {
				t.Errorf("X-Request-ID for %q = %q, want a generated id", id, got)
			}
		}
	})

	t.Run("recovers from panic", func(t *testing.T) {
		h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/equipment", nil))
		assertErrorCode(t, rec, http.StatusInternalServerError, CodeInternal)
	})

	t.Run("panic after response started", func(t *testing.T) {
		h := srv.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			panic("late")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/equipment", nil))
		if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
			t.Errorf("late panic rewrote response: %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		assertErrorCode(t, do(t, srv, http.MethodGet, "/devices", ""), http.StatusNotFound, CodeNotFound)
	})
}
