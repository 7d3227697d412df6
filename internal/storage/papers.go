package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodpapers/goodpapers/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// CreatePaper inserts a new paper and returns its row ID. Authors are
// serialized as a JSON array into a single text column. created_at and
// updated_at are both set to the current time.
func (s *Store) CreatePaper(ctx context.Context, paper *models.Paper) (int64, error) {
	authors, err := json.Marshal(paper.Authors)
	if err != nil {
		return 0, fmt.Errorf("serializing authors: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO papers
			(title, authors, journal, year, doi, url, arxiv_link, abstract,
			 is_currently_reading, reading_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		paper.Title, string(authors), nullableString(paper.Journal), paper.Year,
		nullableString(paper.DOI), nullableString(paper.URL),
		nullableString(paper.ArxivLink), nullableString(paper.Abstract),
		boolToInt(paper.IsCurrentlyReading), paper.ReadingStatus, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("creating paper: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting paper id: %w", err)
	}
	return id, nil
}

const paperColumns = `id, title, authors, journal, year, doi, url, arxiv_link,
		abstract, is_currently_reading, reading_status, created_at, updated_at`

// GetPaperByID returns the paper with the given ID.
// Returns nil, ErrNotFound if no matching row exists.
func (s *Store) GetPaperByID(ctx context.Context, id int64) (*models.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE id = ?`, id)

	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting paper by id: %w", err)
	}
	return paper, nil
}

// GetPaperBySlug resolves a slug like "attention-is-all-you-need-2017" back
// to a paper. The trailing slug segment is the year; the remaining segments
// are rejoined with spaces and matched against the title with LIKE. The
// transformation is lossy, so a slug that collides across two titles
// silently returns whichever row SQLite finds first.
func (s *Store) GetPaperBySlug(ctx context.Context, slug string) (*models.Paper, error) {
	parts := strings.Split(slug, "-")
	if len(parts) < 2 {
		return nil, ErrNotFound
	}

	year, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return nil, ErrNotFound
	}
	titleWords := strings.Join(parts[:len(parts)-1], " ")

	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE year = ? AND title LIKE ?`,
		year, "%"+titleWords+"%")

	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting paper by slug: %w", err)
	}
	return paper, nil
}

// ListPapers returns all papers ordered by creation time, newest first.
func (s *Store) ListPapers(ctx context.Context) ([]models.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paperColumns+` FROM papers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows)
}

// CurrentlyReading returns all papers whose reading status is
// started_reading.
func (s *Store) CurrentlyReading(ctx context.Context) ([]models.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE is_currently_reading = 1 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing currently reading papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows)
}

// FindPaperByArxivLink returns the paper whose arxiv_link exactly matches
// the given link. This is the duplicate-detection key for ArXiv-sourced
// papers. Returns nil, ErrNotFound when no row matches.
func (s *Store) FindPaperByArxivLink(ctx context.Context, link string) (*models.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE arxiv_link = ?`, link)

	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding paper by arxiv link: %w", err)
	}
	return paper, nil
}

// FindPaperByTitleYear returns the paper matching the given title and year
// exactly. It is the fallback duplicate key for papers without an ArXiv
// link. Returns nil, ErrNotFound when no row matches.
func (s *Store) FindPaperByTitleYear(ctx context.Context, title string, year int) (*models.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE title = ? AND year = ?`, title, year)

	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding paper by title and year: %w", err)
	}
	return paper, nil
}

// UpdateReadingStatus sets a paper's reading status, recomputes the
// currently-reading flag, and touches updated_at. All other fields are left
// untouched. Returns ErrNotFound if the paper does not exist.
func (s *Store) UpdateReadingStatus(ctx context.Context, id int64, status string) error {
	if !models.ValidReadingStatus(status) {
		return fmt.Errorf("invalid reading status %q: must be one of add_to_library, want_to_read, started_reading, finished_reading", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE papers
		 SET reading_status = ?, is_currently_reading = ?, updated_at = ?
		 WHERE id = ?`,
		status, boolToInt(models.IsCurrentlyReading(status)),
		time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("updating reading status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePaper removes a paper by ID. The foreign key cascade removes its
// update rows as well. Returns ErrNotFound if the paper does not exist.
func (s *Store) DeletePaper(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting paper: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is a minimal interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanPaper scans a single paper row into a models.Paper, deserializing the
// authors JSON column.
func scanPaper(row scanner) (*models.Paper, error) {
	var (
		paper              models.Paper
		authors            string
		journal            sql.NullString
		doi                sql.NullString
		url                sql.NullString
		arxivLink          sql.NullString
		abstract           sql.NullString
		isCurrentlyReading int
		createdAt          string
		updatedAt          string
	)

	if err := row.Scan(
		&paper.ID, &paper.Title, &authors, &journal, &paper.Year,
		&doi, &url, &arxivLink, &abstract,
		&isCurrentlyReading, &paper.ReadingStatus, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(authors), &paper.Authors); err != nil {
		return nil, fmt.Errorf("deserializing authors: %w", err)
	}

	paper.Slug = models.Slug(paper.Title, paper.Year)
	paper.Journal = journal.String
	paper.DOI = doi.String
	paper.URL = url.String
	paper.ArxivLink = arxivLink.String
	paper.Abstract = abstract.String
	paper.IsCurrentlyReading = isCurrentlyReading == 1
	paper.CreatedAt = parseTime(createdAt)
	paper.UpdatedAt = parseTime(updatedAt)

	return &paper, nil
}

// collectPapers drains rows into a slice, never returning nil for an empty
// result.
func collectPapers(rows *sql.Rows) ([]models.Paper, error) {
	papers := []models.Paper{}
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper row: %w", err)
		}
		papers = append(papers, *paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating paper rows: %w", err)
	}
	return papers, nil
}

// nullableString converts an empty string to nil for nullable TEXT columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// boolToInt converts a bool to the 0/1 representation SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
