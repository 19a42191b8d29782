package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/termhub/workbench/internal/orchestrator"
	"github.com/termhub/workbench/internal/session"
)

type testEnv struct {
	router chi.Router
	store  *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	orch := orchestrator.New(store, t.TempDir())
	t.Cleanup(orch.Shutdown)

	r := chi.NewRouter()
	Register(r, Deps{Store: store, Orchestrator: orch})
	return &testEnv{router: r, store: store}
}

func (te *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	te.router.ServeHTTP(rec, req)
	return rec
}

func TestListSessionsSeedsDefault(t *testing.T) {
	te := newTestEnv(t)

	rec := te.do(t, http.MethodGet, "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var views []sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %+v, want the seeded default entry", views)
	}
}

func TestSaveSessionHidesSecrets(t *testing.T) {
	te := newTestEnv(t)

	rec := te.do(t, http.MethodPost, "/api/sessions",
		`{"name":"web-1","host":"example.com","username":"alice","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "s3cret") {
		t.Error("response leaks the password")
	}
	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if !view.HasPassword {
		t.Error("HasPassword = false after saving a password")
	}
	if view.Port != 22 {
		t.Errorf("port = %d, want normalized 22", view.Port)
	}
}

func TestSaveSessionValidatesFields(t *testing.T) {
	te := newTestEnv(t)
	rec := te.do(t, http.MethodPost, "/api/sessions", `{"name":"incomplete"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateKeepsStoredSecretWhenOmitted(t *testing.T) {
	te := newTestEnv(t)
	te.do(t, http.MethodPost, "/api/sessions",
		`{"name":"web-1","host":"example.com","username":"alice","password":"s3cret"}`)

	rec := te.do(t, http.MethodPut, "/api/sessions/web-1",
		`{"host":"other.example.com","username":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	records, err := te.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	stored, ok := session.Find(records, "web-1")
	if !ok {
		t.Fatal("record gone after update")
	}
	if stored.Password != "s3cret" {
		t.Errorf("password = %q, want the stored secret kept", stored.Password)
	}
	if stored.Host != "other.example.com" {
		t.Errorf("host = %q", stored.Host)
	}
}

func TestDeleteSession(t *testing.T) {
	te := newTestEnv(t)
	te.do(t, http.MethodPost, "/api/sessions",
		`{"name":"web-1","host":"example.com","username":"alice","password":"p"}`)

	rec := te.do(t, http.MethodDelete, "/api/sessions/web-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = te.do(t, http.MethodDelete, "/api/sessions/web-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestTabOperationUnknownSession(t *testing.T) {
	te := newTestEnv(t)
	rec := te.do(t, http.MethodPost, "/api/sessions/ghost/refresh", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCompressRejectsUnknownFormat(t *testing.T) {
	te := newTestEnv(t)
	rec := te.do(t, http.MethodPost, "/api/sessions/localhost/compress",
		`{"name":"docs","format":"rar"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}
