package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goodpapers/goodpapers/internal/models"
)

func TestGetUpdates(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store)

	if w := postJSON(t, CreatePaper(service), "/api/papers", createPaperRequest()); w.Code != http.StatusCreated {
		t.Fatalf("seeding paper failed with status %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/updates", nil)
	w := httptest.NewRecorder()
	GetUpdates(store).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	var updates []models.Update
	if err := json.NewDecoder(w.Body).Decode(&updates); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].Message != `Added to "Want to Read" list` {
		t.Errorf("message = %q", updates[0].Message)
	}
}

func TestGetUpdatesFilteredByPaper(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store)

	if w := postJSON(t, CreatePaper(service), "/api/papers", createPaperRequest()); w.Code != http.StatusCreated {
		t.Fatalf("seeding first paper failed with status %d", w.Code)
	}
	second := createPaperRequest()
	second["title"] = "Deep Learning"
	delete(second, "arxivLink")
	if w := postJSON(t, CreatePaper(service), "/api/papers", second); w.Code != http.StatusCreated {
		t.Fatalf("seeding second paper failed with status %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/updates?paper_id=2", nil)
	w := httptest.NewRecorder()
	GetUpdates(store).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	var updates []models.Update
	if err := json.NewDecoder(w.Body).Decode(&updates); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].PaperTitle != "Deep Learning" {
		t.Errorf("paperTitle = %q, want %q", updates[0].PaperTitle, "Deep Learning")
	}
}

func TestGetUpdatesInvalidPaperID(t *testing.T) {
	store := newTestStore(t)

	r := httptest.NewRequest(http.MethodGet, "/api/updates?paper_id=abc", nil)
	w := httptest.NewRecorder()
	GetUpdates(store).ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetUpdatesEmpty(t *testing.T) {
	store := newTestStore(t)

	r := httptest.NewRequest(http.MethodGet, "/api/updates", nil)
	w := httptest.NewRecorder()
	GetUpdates(store).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("empty log body = %q, want JSON empty array", got)
	}
}

func TestHealth(t *testing.T) {
	store := newTestStore(t)

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	Health(store).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}
