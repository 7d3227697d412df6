// Package ingest composes identifier extraction, the ArXiv fetch, duplicate
// detection, primary-store persistence, and the Keystone mirror into the
// end-to-end add/update operations exposed by the HTTP API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/goodpapers/goodpapers/internal/arxiv"
	"github.com/goodpapers/goodpapers/internal/keystone"
	"github.com/goodpapers/goodpapers/internal/models"
	"github.com/goodpapers/goodpapers/internal/storage"
)

// ErrInvalidIdentifier is returned when user input cannot be parsed into an
// ArXiv identifier.
var ErrInvalidIdentifier = errors.New("invalid ArXiv ID or URL")

// ErrValidation is wrapped by errors reporting missing or malformed paper
// fields.
var ErrValidation = errors.New("validation failed")

const importTimeout = 30 * time.Second

// Syncer mirrors ingestion results to a secondary store. Enqueue must not
// block and must not fail the caller.
type Syncer interface {
	Enqueue(task keystone.Task)
}

// Service orchestrates paper ingestion. The Keystone syncer is optional; a
// nil syncer disables mirroring.
type Service struct {
	store  *storage.Store
	arxiv  *arxiv.Client
	syncer Syncer
}

// NewService creates an ingestion Service.
func NewService(store *storage.Store, arxivClient *arxiv.Client, syncer Syncer) *Service {
	return &Service{store: store, arxiv: arxivClient, syncer: syncer}
}

// FetchResult is the outcome of an ArXiv metadata fetch, including whether
// the paper is already in the library.
type FetchResult struct {
	Paper       *models.ArxivPaper
	IsDuplicate bool
	Existing    *models.Paper
}

// FetchArxiv parses user input into an ArXiv identifier, fetches the paper's
// metadata, and checks the library for an existing row with the same ArXiv
// link. It returns ErrInvalidIdentifier for unparseable input and passes
// arxiv.ErrNotFound and upstream errors through.
func (s *Service) FetchArxiv(ctx context.Context, input string) (*FetchResult, error) {
	id, ok := arxiv.ExtractID(input)
	if !ok {
		return nil, ErrInvalidIdentifier
	}

	paper, err := s.arxiv.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{Paper: paper}

	existing, err := s.store.FindPaperByArxivLink(ctx, paper.ArxivLink)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking for duplicate paper: %w", err)
	}
	if existing != nil {
		result.IsDuplicate = true
		result.Existing = existing
	}

	return result, nil
}

// CreateRequest carries the fields for a paper ingestion.
type CreateRequest struct {
	Title         string
	Authors       []string
	Journal       string
	Year          int
	DOI           string
	URL           string
	ArxivLink     string
	Abstract      string
	ReadingStatus string
}

// CreateResult is the outcome of a paper ingestion. IsDuplicate reports that
// an existing row was found and only its reading status was updated.
type CreateResult struct {
	Paper       *models.Paper
	IsDuplicate bool
}

// CreatePaper ingests a paper. When a row with the same ArXiv link (or, for
// papers without one, the same title and year) already exists, the existing
// row keeps its metadata and only takes the requested reading status. Either
// way exactly one activity update is recorded and the result is queued for
// the Keystone mirror.
func (s *Service) CreatePaper(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Title == "" || len(req.Authors) == 0 || req.Year == 0 {
		return nil, fmt.Errorf("%w: title, authors, and year are required", ErrValidation)
	}

	status := req.ReadingStatus
	if status == "" {
		status = models.StatusAddToLibrary
	}
	if !models.ValidReadingStatus(status) {
		return nil, fmt.Errorf("%w: invalid reading status %q", ErrValidation, status)
	}

	existing, err := s.findDuplicate(ctx, req.ArxivLink, req.Title, req.Year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		paper, err := s.applyStatus(ctx, existing.ID, status)
		if err != nil {
			return nil, err
		}
		return &CreateResult{Paper: paper, IsDuplicate: true}, nil
	}

	paper := &models.Paper{
		Title:              req.Title,
		Authors:            req.Authors,
		Journal:            req.Journal,
		Year:               req.Year,
		DOI:                req.DOI,
		URL:                req.URL,
		ArxivLink:          req.ArxivLink,
		Abstract:           req.Abstract,
		IsCurrentlyReading: models.IsCurrentlyReading(status),
		ReadingStatus:      status,
	}

	id, err := s.store.CreatePaper(ctx, paper)
	if err != nil {
		return nil, fmt.Errorf("persisting paper: %w", err)
	}

	created, err := s.store.GetPaperByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading back created paper: %w", err)
	}

	s.logAndSync(ctx, created, status, false)
	return &CreateResult{Paper: created, IsDuplicate: false}, nil
}

// UpdateReadingStatus transitions a paper to a new reading status, records
// the activity update, and queues the Keystone mirror. Returns
// storage.ErrNotFound when the paper does not exist and a wrapped
// ErrValidation for an unknown status.
func (s *Service) UpdateReadingStatus(ctx context.Context, id int64, status string) (*models.Paper, error) {
	if !models.ValidReadingStatus(status) {
		return nil, fmt.Errorf("%w: invalid reading status %q", ErrValidation, status)
	}
	return s.applyStatus(ctx, id, status)
}

// ImportRequest carries the fields for importing a non-ArXiv paper from a
// web page.
type ImportRequest struct {
	URL           string
	ReadingStatus string
}

// ImportFromURL ingests a paper from an arbitrary web page. Title and
// abstract are extracted with readability; the year defaults to the current
// year since web pages rarely expose one. Duplicate detection uses the
// title+year key because there is no ArXiv link.
func (s *Service) ImportFromURL(ctx context.Context, req ImportRequest) (*CreateResult, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrValidation)
	}

	status := req.ReadingStatus
	if status == "" {
		status = models.StatusAddToLibrary
	}
	if !models.ValidReadingStatus(status) {
		return nil, fmt.Errorf("%w: invalid reading status %q", ErrValidation, status)
	}

	article, err := readability.FromURL(req.URL, importTimeout, browserHeaders)
	if err != nil {
		return nil, fmt.Errorf("extracting page metadata from %q: %w", req.URL, err)
	}

	title := article.Title
	if title == "" {
		return nil, fmt.Errorf("%w: page has no extractable title", ErrValidation)
	}

	authors := []string{}
	if article.Byline != "" {
		authors = append(authors, article.Byline)
	}

	year := time.Now().Year()
	if article.PublishedTime != nil {
		year = article.PublishedTime.Year()
	}

	existing, err := s.findDuplicate(ctx, "", title, year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		paper, err := s.applyStatus(ctx, existing.ID, status)
		if err != nil {
			return nil, err
		}
		return &CreateResult{Paper: paper, IsDuplicate: true}, nil
	}

	paper := &models.Paper{
		Title:              title,
		Authors:            authors,
		Year:               year,
		URL:                req.URL,
		Abstract:           article.Excerpt,
		IsCurrentlyReading: models.IsCurrentlyReading(status),
		ReadingStatus:      status,
	}

	id, err := s.store.CreatePaper(ctx, paper)
	if err != nil {
		return nil, fmt.Errorf("persisting imported paper: %w", err)
	}

	created, err := s.store.GetPaperByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading back imported paper: %w", err)
	}

	s.logAndSync(ctx, created, status, false)
	return &CreateResult{Paper: created, IsDuplicate: false}, nil
}

// findDuplicate looks up an existing paper by ArXiv link, falling back to
// title+year when no link is available. A missing row is not an error.
func (s *Service) findDuplicate(ctx context.Context, arxivLink, title string, year int) (*models.Paper, error) {
	var (
		existing *models.Paper
		err      error
	)
	if arxivLink != "" {
		existing, err = s.store.FindPaperByArxivLink(ctx, arxivLink)
	} else {
		existing, err = s.store.FindPaperByTitleYear(ctx, title, year)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking for duplicate paper: %w", err)
	}
	return existing, nil
}

// applyStatus performs a status transition on an existing paper, records the
// activity update, and queues the mirror.
func (s *Service) applyStatus(ctx context.Context, id int64, status string) (*models.Paper, error) {
	if err := s.store.UpdateReadingStatus(ctx, id, status); err != nil {
		return nil, err
	}

	paper, err := s.store.GetPaperByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading back updated paper: %w", err)
	}

	s.logAndSync(ctx, paper, status, true)
	return paper, nil
}

// logAndSync appends the activity update for a transition and queues the
// Keystone mirror. A failed update insert is logged but does not undo the
// paper write; mirror failures are handled inside the syncer and never reach
// the caller.
func (s *Service) logAndSync(ctx context.Context, paper *models.Paper, status string, existing bool) {
	update := models.Update{
		PaperID:       paper.ID,
		PaperTitle:    paper.Title,
		Message:       models.StatusMessage(status, existing),
		ReadingStatus: status,
		Timestamp:     time.Now().UTC(),
	}

	if id, err := s.store.CreateUpdate(ctx, &update); err != nil {
		slog.Error("failed to record activity update",
			"paper_id", paper.ID,
			"message", update.Message,
			"error", err,
		)
	} else {
		update.ID = id
	}

	if s.syncer != nil {
		s.syncer.Enqueue(keystone.Task{Paper: *paper, Update: update})
	}
}

// browserHeaders sets browser-like request headers so sites that check
// Accept or User-Agent don't reject the import request with 406.
func browserHeaders(r *http.Request) {
	r.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	r.Header.Set("User-Agent", "Mozilla/5.0 (compatible; goodpapers/1.0)")
}
