package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goodpapers/goodpapers/internal/arxiv"
	"github.com/goodpapers/goodpapers/internal/ingest"
	"github.com/goodpapers/goodpapers/internal/models"
	"github.com/goodpapers/goodpapers/internal/storage"
)

// FetchArxiv handles POST /api/papers/fetch-arxiv. It extracts an ArXiv
// identifier from the request, fetches the paper's metadata, and reports
// whether the paper is already in the library. The metadata fields sit at the
// top level of the response; isDuplicate and existingPaper appear only when a
// matching row was found.
func FetchArxiv(service *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			ArxivID string `json:"arxivId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		body.ArxivID = strings.TrimSpace(body.ArxivID)
		if body.ArxivID == "" {
			writeError(w, http.StatusBadRequest, "arxivId is required")
			return
		}

		result, err := service.FetchArxiv(ctx, body.ArxivID)
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrInvalidIdentifier):
				writeError(w, http.StatusBadRequest, "Invalid ArXiv ID or URL")
			case errors.Is(err, arxiv.ErrNotFound):
				writeError(w, http.StatusNotFound, "Paper not found on ArXiv")
			default:
				slog.Error("failed to fetch from ArXiv", "arxivId", body.ArxivID, "error", err)
				writeError(w, http.StatusBadGateway, "Failed to fetch paper metadata from ArXiv")
			}
			return
		}

		writeJSON(w, http.StatusOK, struct {
			models.ArxivPaper
			IsDuplicate   bool          `json:"isDuplicate,omitempty"`
			ExistingPaper *models.Paper `json:"existingPaper,omitempty"`
		}{
			ArxivPaper:    *result.Paper,
			IsDuplicate:   result.IsDuplicate,
			ExistingPaper: result.Existing,
		})
	}
}

// writeIngestResult answers 201 with the created paper itself, or 200 with
// the existing paper's fields plus an isDuplicate marker when the ingestion
// matched a row already in the library.
func writeIngestResult(w http.ResponseWriter, result *ingest.CreateResult) {
	if result.IsDuplicate {
		writeJSON(w, http.StatusOK, struct {
			models.Paper
			IsDuplicate bool `json:"isDuplicate"`
		}{
			Paper:       *result.Paper,
			IsDuplicate: true,
		})
		return
	}
	writeJSON(w, http.StatusCreated, result.Paper)
}

// CreatePaper handles POST /api/papers. It ingests a paper into the library.
// A new paper answers 201; when a duplicate is detected, the existing row
// takes the requested reading status and the response is 200.
func CreatePaper(service *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Journal       string   `json:"journal"`
			Year          int      `json:"year"`
			DOI           string   `json:"doi"`
			URL           string   `json:"url"`
			ArxivLink     string   `json:"arxivLink"`
			Abstract      string   `json:"abstract"`
			ReadingStatus string   `json:"readingStatus"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		result, err := service.CreatePaper(ctx, ingest.CreateRequest{
			Title:         strings.TrimSpace(body.Title),
			Authors:       body.Authors,
			Journal:       body.Journal,
			Year:          body.Year,
			DOI:           body.DOI,
			URL:           body.URL,
			ArxivLink:     body.ArxivLink,
			Abstract:      body.Abstract,
			ReadingStatus: body.ReadingStatus,
		})
		if err != nil {
			if errors.Is(err, ingest.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("failed to create paper", "title", body.Title, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to save paper")
			return
		}

		writeIngestResult(w, result)
	}
}

// ImportFromURL handles POST /api/papers/import-url. It imports a non-ArXiv
// paper by extracting metadata from an arbitrary web page.
func ImportFromURL(service *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			URL           string `json:"url"`
			ReadingStatus string `json:"readingStatus"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		body.URL = strings.TrimSpace(body.URL)
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		parsed, err := url.ParseRequestURI(body.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			writeError(w, http.StatusBadRequest, "url must be a valid HTTP or HTTPS URL")
			return
		}

		result, err := service.ImportFromURL(ctx, ingest.ImportRequest{
			URL:           body.URL,
			ReadingStatus: body.ReadingStatus,
		})
		if err != nil {
			if errors.Is(err, ingest.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Warn("failed to import paper from URL", "url", body.URL, "error", err)
			writeError(w, http.StatusUnprocessableEntity, "Could not fetch paper from URL")
			return
		}

		writeIngestResult(w, result)
	}
}

// UpdateReadingStatus handles PATCH /api/papers/{id}/reading-status. It
// transitions a paper to a new reading status and records the activity
// update.
func UpdateReadingStatus(service *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var body struct {
			ReadingStatus string `json:"readingStatus"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		paper, err := service.UpdateReadingStatus(ctx, id, body.ReadingStatus)
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrValidation):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, storage.ErrNotFound):
				writeError(w, http.StatusNotFound, "Paper not found")
			default:
				slog.Error("failed to update reading status", "id", id, "error", err)
				writeError(w, http.StatusInternalServerError, "Failed to update reading status")
			}
			return
		}

		writeJSON(w, http.StatusOK, paper)
	}
}

// GetPapers handles GET /api/papers. It returns all papers in the library,
// newest first.
func GetPapers(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		papers, err := store.ListPapers(r.Context())
		if err != nil {
			slog.Error("failed to list papers", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get papers")
			return
		}

		if papers == nil {
			papers = []models.Paper{}
		}
		writeJSON(w, http.StatusOK, papers)
	}
}

// GetPaper handles GET /api/papers/{id}.
func GetPaper(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		paper, err := store.GetPaperByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Paper not found")
				return
			}
			slog.Error("failed to get paper", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get paper")
			return
		}

		writeJSON(w, http.StatusOK, paper)
	}
}

// GetPaperBySlug handles GET /api/papers/slug/{slug}. The slug is the
// lowercased, hyphenated title followed by the publication year.
func GetPaperBySlug(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if slug == "" {
			writeError(w, http.StatusBadRequest, "slug is required")
			return
		}

		paper, err := store.GetPaperBySlug(r.Context(), slug)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Paper not found")
				return
			}
			slog.Error("failed to get paper by slug", "slug", slug, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get paper")
			return
		}

		writeJSON(w, http.StatusOK, paper)
	}
}

// GetCurrentlyReading handles GET /api/papers/reading/current. It returns
// the papers with started_reading status.
func GetCurrentlyReading(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		papers, err := store.CurrentlyReading(r.Context())
		if err != nil {
			slog.Error("failed to get currently reading papers", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get currently reading papers")
			return
		}

		if papers == nil {
			papers = []models.Paper{}
		}
		writeJSON(w, http.StatusOK, papers)
	}
}

// DeletePaper handles DELETE /api/papers/{id}. Deleting a paper also removes
// its activity updates.
func DeletePaper(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := store.DeletePaper(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Paper not found")
				return
			}
			slog.Error("failed to delete paper", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete paper")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
