package keystone

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goodpapers/goodpapers/internal/models"
)

var syncTestPaper = models.Paper{
	ID:            1,
	Title:         "Attention Is All You Need",
	Authors:       []string{"Ashish Vaswani", "Noam Shazeer"},
	Year:          2017,
	URL:           "https://arxiv.org/abs/1706.03762",
	ArxivLink:     "https://arxiv.org/abs/1706.03762",
	Abstract:      "The dominant sequence transduction models.",
	ReadingStatus: models.StatusWantToRead,
}

func TestSyncPaper_CreatesWhenMissing(t *testing.T) {
	fake := newFakeKeystone(t)
	fake.handle = func(req graphQLRequest) (any, error) {
		switch {
		case strings.Contains(req.Query, "query FindPaper"):
			if req.Variables["title"] != "Attention Is All You Need" {
				t.Errorf("find title = %v", req.Variables["title"])
			}
			return map[string]any{"papers": []any{}}, nil
		case strings.Contains(req.Query, "mutation CreatePaper"):
			data := req.Variables["data"].(map[string]any)
			if data["authors"] != "Ashish Vaswani, Noam Shazeer" {
				t.Errorf("authors = %v, want joined names", data["authors"])
			}
			if data["isCurrentlyReading"] != false {
				t.Errorf("isCurrentlyReading = %v, want false", data["isCurrentlyReading"])
			}
			return map[string]any{"createPaper": map[string]string{"id": "remote-1"}}, nil
		default:
			return nil, fmt.Errorf("unexpected query: %s", req.Query)
		}
	}

	client := NewClient(fake.clientConfig())
	id, err := client.SyncPaper(context.Background(), &syncTestPaper)
	if err != nil {
		t.Fatalf("SyncPaper() error: %v", err)
	}
	if id != "remote-1" {
		t.Errorf("remote id = %q, want %q", id, "remote-1")
	}
}

func TestSyncPaper_UpdatesWhenFound(t *testing.T) {
	fake := newFakeKeystone(t)
	var updated bool
	fake.handle = func(req graphQLRequest) (any, error) {
		switch {
		case strings.Contains(req.Query, "query FindPaper"):
			return map[string]any{"papers": []map[string]string{{"id": "remote-7"}}}, nil
		case strings.Contains(req.Query, "mutation UpdatePaper"):
			updated = true
			if req.Variables["id"] != "remote-7" {
				t.Errorf("update id = %v, want remote-7", req.Variables["id"])
			}
			return map[string]any{"updatePaper": map[string]string{"id": "remote-7"}}, nil
		default:
			return nil, fmt.Errorf("unexpected query: %s", req.Query)
		}
	}

	client := NewClient(fake.clientConfig())
	id, err := client.SyncPaper(context.Background(), &syncTestPaper)
	if err != nil {
		t.Fatalf("SyncPaper() error: %v", err)
	}
	if id != "remote-7" {
		t.Errorf("remote id = %q, want %q", id, "remote-7")
	}
	if !updated {
		t.Error("expected UpdatePaper mutation for existing record")
	}
}

func TestSyncUpdate(t *testing.T) {
	fake := newFakeKeystone(t)
	var gotData map[string]any
	fake.handle = func(req graphQLRequest) (any, error) {
		if !strings.Contains(req.Query, "mutation CreateUpdate") {
			return nil, fmt.Errorf("unexpected query: %s", req.Query)
		}
		gotData = req.Variables["data"].(map[string]any)
		return map[string]any{"createUpdate": map[string]string{"id": "u-1", "message": "Started reading"}}, nil
	}

	client := NewClient(fake.clientConfig())
	update := &models.Update{
		PaperID:       1,
		PaperTitle:    "Attention Is All You Need",
		Message:       "Started reading",
		ReadingStatus: models.StatusStartedReading,
		Timestamp:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := client.SyncUpdate(context.Background(), update, "remote-1"); err != nil {
		t.Fatalf("SyncUpdate() error: %v", err)
	}

	if gotData["paperTitle"] != "Attention Is All You Need" {
		t.Errorf("paperTitle = %v", gotData["paperTitle"])
	}
	if gotData["message"] != "Started reading" {
		t.Errorf("message = %v", gotData["message"])
	}
	if gotData["reading_status"] != models.StatusStartedReading {
		t.Errorf("reading_status = %v, want %q", gotData["reading_status"], models.StatusStartedReading)
	}
	paper, ok := gotData["paper"].(map[string]any)
	if !ok {
		t.Fatalf("paper = %v, want connect reference", gotData["paper"])
	}
	connect := paper["connect"].(map[string]any)
	if connect["id"] != "remote-1" {
		t.Errorf("connect id = %v, want remote-1", connect["id"])
	}
}

func TestSyncUpdate_OmitsEmptyReadingStatus(t *testing.T) {
	fake := newFakeKeystone(t)
	var gotData map[string]any
	fake.handle = func(req graphQLRequest) (any, error) {
		gotData = req.Variables["data"].(map[string]any)
		return map[string]any{"createUpdate": map[string]string{"id": "u-2"}}, nil
	}

	client := NewClient(fake.clientConfig())
	update := &models.Update{
		PaperTitle: "Attention Is All You Need",
		Message:    "Added to library",
		Timestamp:  time.Now(),
	}

	if err := client.SyncUpdate(context.Background(), update, "remote-1"); err != nil {
		t.Fatalf("SyncUpdate() error: %v", err)
	}
	if _, present := gotData["reading_status"]; present {
		t.Error("reading_status should be omitted when empty")
	}
}
