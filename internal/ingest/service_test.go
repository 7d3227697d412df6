package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goodpapers/goodpapers/internal/arxiv"
	"github.com/goodpapers/goodpapers/internal/keystone"
	"github.com/goodpapers/goodpapers/internal/models"
	"github.com/goodpapers/goodpapers/internal/storage"
)

// recordingSyncer captures enqueued mirror tasks for assertions.
type recordingSyncer struct {
	mu    sync.Mutex
	tasks []keystone.Task
}

func (r *recordingSyncer) Enqueue(task keystone.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

func (r *recordingSyncer) all() []keystone.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]keystone.Task(nil), r.tasks...)
}

// newTestStore creates an in-memory SQLite store with migrations applied.
func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := storage.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return storage.NewStore(db)
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All You Need</title>
    <summary>The dominant sequence transduction models.</summary>
    <published>2017-06-12T17:57:34Z</published>
    <updated>2023-08-02T00:41:18Z</updated>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
</feed>`

const emptyArxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

// newTestService wires a Service against an in-memory store and a stub
// ArXiv server that always answers with the given feed body.
func newTestService(t *testing.T, feedBody string) (*Service, *storage.Store, *recordingSyncer) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(feedBody))
	}))
	t.Cleanup(srv.Close)

	store := newTestStore(t)
	syncer := &recordingSyncer{}
	service := NewService(store, arxiv.NewClient(srv.URL, 5*time.Second), syncer)
	return service, store, syncer
}

func arxivRequest(status string) CreateRequest {
	return CreateRequest{
		Title:         "Attention Is All You Need",
		Authors:       []string{"A", "B"},
		Year:          2017,
		ArxivLink:     "https://arxiv.org/abs/1706.03762",
		URL:           "https://arxiv.org/abs/1706.03762",
		ReadingStatus: status,
	}
}

func TestFetchArxiv(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)

	result, err := service.FetchArxiv(context.Background(), "https://arxiv.org/abs/1706.03762")
	if err != nil {
		t.Fatalf("FetchArxiv() error: %v", err)
	}
	if result.Paper.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", result.Paper.Title)
	}
	if result.IsDuplicate {
		t.Error("IsDuplicate = true for empty library")
	}
	if result.Existing != nil {
		t.Error("Existing should be nil for empty library")
	}
}

func TestFetchArxiv_InvalidIdentifier(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)

	_, err := service.FetchArxiv(context.Background(), "not an id")
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestFetchArxiv_NotFound(t *testing.T) {
	service, _, _ := newTestService(t, emptyArxivFeed)

	_, err := service.FetchArxiv(context.Background(), "1706.03762")
	if !errors.Is(err, arxiv.ErrNotFound) {
		t.Fatalf("error = %v, want arxiv.ErrNotFound", err)
	}
}

func TestFetchArxiv_ReportsDuplicate(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)
	ctx := context.Background()

	if _, err := service.CreatePaper(ctx, arxivRequest(models.StatusAddToLibrary)); err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}

	result, err := service.FetchArxiv(ctx, "1706.03762")
	if err != nil {
		t.Fatalf("FetchArxiv() error: %v", err)
	}
	if !result.IsDuplicate {
		t.Error("IsDuplicate = false, want true")
	}
	if result.Existing == nil || result.Existing.Title != "Attention Is All You Need" {
		t.Errorf("Existing = %+v, want the stored paper", result.Existing)
	}
}

func TestCreatePaper_NewPaper(t *testing.T) {
	service, store, syncer := newTestService(t, arxivFeed)
	ctx := context.Background()

	result, err := service.CreatePaper(ctx, arxivRequest(models.StatusWantToRead))
	if err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}
	if result.IsDuplicate {
		t.Error("IsDuplicate = true for first ingestion")
	}
	if result.Paper.IsCurrentlyReading {
		t.Error("IsCurrentlyReading = true, want false for want_to_read")
	}
	if result.Paper.ReadingStatus != models.StatusWantToRead {
		t.Errorf("ReadingStatus = %q", result.Paper.ReadingStatus)
	}

	// Exactly one update row with the mapped message.
	updates, err := store.ListUpdates(ctx)
	if err != nil {
		t.Fatalf("ListUpdates() error: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].Message != `Added to "Want to Read" list` {
		t.Errorf("Message = %q, want %q", updates[0].Message, `Added to "Want to Read" list`)
	}
	if updates[0].PaperID != result.Paper.ID {
		t.Errorf("PaperID = %d, want %d", updates[0].PaperID, result.Paper.ID)
	}

	// The mirror task carries both records.
	tasks := syncer.all()
	if len(tasks) != 1 {
		t.Fatalf("got %d sync tasks, want 1", len(tasks))
	}
	if tasks[0].Paper.ID != result.Paper.ID {
		t.Errorf("task paper ID = %d, want %d", tasks[0].Paper.ID, result.Paper.ID)
	}
	if tasks[0].Update.Message != updates[0].Message {
		t.Errorf("task update message = %q", tasks[0].Update.Message)
	}
}

func TestCreatePaper_DuplicateUpdatesStatusOnly(t *testing.T) {
	service, store, _ := newTestService(t, arxivFeed)
	ctx := context.Background()

	first, err := service.CreatePaper(ctx, arxivRequest(models.StatusWantToRead))
	if err != nil {
		t.Fatalf("first CreatePaper() error: %v", err)
	}

	// Re-ingest the same arxivLink with different metadata and a new status.
	req := arxivRequest(models.StatusFinishedReading)
	req.Title = "A Mangled Title That Must Not Overwrite"
	req.Authors = []string{"Someone Else"}

	second, err := service.CreatePaper(ctx, req)
	if err != nil {
		t.Fatalf("second CreatePaper() error: %v", err)
	}
	if !second.IsDuplicate {
		t.Fatal("IsDuplicate = false, want true")
	}
	if second.Paper.ID != first.Paper.ID {
		t.Errorf("second ingestion created a new row: %d != %d", second.Paper.ID, first.Paper.ID)
	}
	// Metadata keeps the original values; only the status changed.
	if second.Paper.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q, duplicate ingestion must not overwrite metadata", second.Paper.Title)
	}
	if second.Paper.ReadingStatus != models.StatusFinishedReading {
		t.Errorf("ReadingStatus = %q, want finished_reading", second.Paper.ReadingStatus)
	}
	if second.Paper.IsCurrentlyReading {
		t.Error("IsCurrentlyReading = true, want false")
	}

	papers, _ := store.ListPapers(ctx)
	if len(papers) != 1 {
		t.Fatalf("got %d papers, want 1 (no duplicate row)", len(papers))
	}

	updates, _ := store.ListUpdates(ctx)
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].Message != "Finished reading" {
		t.Errorf("latest message = %q, want %q", updates[0].Message, "Finished reading")
	}
}

func TestCreatePaper_TitleYearFallbackWithoutArxivLink(t *testing.T) {
	service, store, _ := newTestService(t, arxivFeed)
	ctx := context.Background()

	req := CreateRequest{
		Title:   "A Journal Paper",
		Authors: []string{"C"},
		Year:    2019,
	}
	if _, err := service.CreatePaper(ctx, req); err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}

	second, err := service.CreatePaper(ctx, req)
	if err != nil {
		t.Fatalf("second CreatePaper() error: %v", err)
	}
	if !second.IsDuplicate {
		t.Error("IsDuplicate = false, want true via title+year match")
	}

	papers, _ := store.ListPapers(ctx)
	if len(papers) != 1 {
		t.Errorf("got %d papers, want 1", len(papers))
	}
}

func TestCreatePaper_Validation(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{
			name: "missing title",
			req:  CreateRequest{Authors: []string{"A"}, Year: 2017},
		},
		{
			name: "missing authors",
			req:  CreateRequest{Title: "T", Year: 2017},
		},
		{
			name: "missing year",
			req:  CreateRequest{Title: "T", Authors: []string{"A"}},
		},
		{
			name: "bad status",
			req:  CreateRequest{Title: "T", Authors: []string{"A"}, Year: 2017, ReadingStatus: "devoured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreatePaper(ctx, tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreatePaper_DefaultStatus(t *testing.T) {
	service, store, _ := newTestService(t, arxivFeed)
	ctx := context.Background()

	result, err := service.CreatePaper(ctx, CreateRequest{
		Title:   "Defaulted",
		Authors: []string{"A"},
		Year:    2020,
	})
	if err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}
	if result.Paper.ReadingStatus != models.StatusAddToLibrary {
		t.Errorf("ReadingStatus = %q, want add_to_library default", result.Paper.ReadingStatus)
	}

	updates, _ := store.ListUpdates(ctx)
	if len(updates) != 1 || updates[0].Message != "Added to library" {
		t.Errorf("updates = %+v, want one 'Added to library' entry", updates)
	}
}

func TestCreatePaper_StartedReadingSetsCurrentlyReading(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)

	result, err := service.CreatePaper(context.Background(), arxivRequest(models.StatusStartedReading))
	if err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}
	if !result.Paper.IsCurrentlyReading {
		t.Error("IsCurrentlyReading = false, want true for started_reading")
	}
}

func TestUpdateReadingStatus(t *testing.T) {
	service, store, syncer := newTestService(t, arxivFeed)
	ctx := context.Background()

	created, err := service.CreatePaper(ctx, arxivRequest(models.StatusWantToRead))
	if err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}

	paper, err := service.UpdateReadingStatus(ctx, created.Paper.ID, models.StatusStartedReading)
	if err != nil {
		t.Fatalf("UpdateReadingStatus() error: %v", err)
	}
	if !paper.IsCurrentlyReading {
		t.Error("IsCurrentlyReading = false, want true")
	}

	// Back to the library produces the "Moved to library" message.
	if _, err := service.UpdateReadingStatus(ctx, created.Paper.ID, models.StatusAddToLibrary); err != nil {
		t.Fatalf("UpdateReadingStatus() error: %v", err)
	}

	updates, _ := store.ListUpdates(ctx)
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}
	if updates[0].Message != "Moved to library" {
		t.Errorf("latest message = %q, want %q", updates[0].Message, "Moved to library")
	}
	if updates[1].Message != "Started reading" {
		t.Errorf("middle message = %q, want %q", updates[1].Message, "Started reading")
	}

	if len(syncer.all()) != 3 {
		t.Errorf("got %d sync tasks, want 3", len(syncer.all()))
	}
}

func TestUpdateReadingStatus_NotFound(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)

	_, err := service.UpdateReadingStatus(context.Background(), 99999, models.StatusWantToRead)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want storage.ErrNotFound", err)
	}
}

func TestUpdateReadingStatus_Invalid(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)

	_, err := service.UpdateReadingStatus(context.Background(), 1, "skimmed")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestCreatePaper_NilSyncer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(arxivFeed))
	}))
	defer srv.Close()

	store := newTestStore(t)
	service := NewService(store, arxiv.NewClient(srv.URL, 5*time.Second), nil)

	// Mirroring disabled must not affect the primary write.
	result, err := service.CreatePaper(context.Background(), arxivRequest(models.StatusAddToLibrary))
	if err != nil {
		t.Fatalf("CreatePaper() error: %v", err)
	}
	if result.Paper.ID == 0 {
		t.Error("paper not persisted")
	}
}

func TestImportFromURL(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>A Survey of Test Pages</title></head>
<body>
<article>
<h1>A Survey of Test Pages</h1>
<p>This page stands in for a journal article that is not on ArXiv. It has
enough prose for the readability extraction to find a main content block,
which requires a paragraph of reasonable length to score highly.</p>
<p>A second paragraph keeps the extractor from treating the document as
boilerplate and adds more scoreable text content for the algorithm.</p>
</article>
</body>
</html>`
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer pageSrv.Close()

	service, store, _ := newTestService(t, arxivFeed)
	ctx := context.Background()

	result, err := service.ImportFromURL(ctx, ImportRequest{URL: pageSrv.URL, ReadingStatus: models.StatusWantToRead})
	if err != nil {
		t.Fatalf("ImportFromURL() error: %v", err)
	}
	if result.IsDuplicate {
		t.Error("IsDuplicate = true for first import")
	}
	if result.Paper.Title != "A Survey of Test Pages" {
		t.Errorf("Title = %q", result.Paper.Title)
	}
	if result.Paper.ArxivLink != "" {
		t.Errorf("ArxivLink = %q, want empty for web import", result.Paper.ArxivLink)
	}

	// Re-importing the same page matches on title+year.
	second, err := service.ImportFromURL(ctx, ImportRequest{URL: pageSrv.URL})
	if err != nil {
		t.Fatalf("second ImportFromURL() error: %v", err)
	}
	if !second.IsDuplicate {
		t.Error("IsDuplicate = false on re-import, want true")
	}

	papers, _ := store.ListPapers(ctx)
	if len(papers) != 1 {
		t.Errorf("got %d papers, want 1", len(papers))
	}
}

func TestImportFromURL_Validation(t *testing.T) {
	service, _, _ := newTestService(t, arxivFeed)

	_, err := service.ImportFromURL(context.Background(), ImportRequest{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
