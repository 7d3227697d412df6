package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goodpapers/goodpapers/internal/models"
)

// CreateUpdate appends an activity log entry for a paper. The paper title is
// denormalized into the row so the entry survives later edits to the paper.
// A zero Timestamp is replaced with the current time.
func (s *Store) CreateUpdate(ctx context.Context, update *models.Update) (int64, error) {
	ts := update.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (paper_id, paper_title, message, reading_status, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		update.PaperID, update.PaperTitle, update.Message,
		nullableString(update.ReadingStatus), ts.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("creating update: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting update id: %w", err)
	}
	return id, nil
}

// ListUpdates returns all activity log entries, newest first.
func (s *Store) ListUpdates(ctx context.Context) ([]models.Update, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, paper_id, paper_title, message, reading_status, timestamp
		 FROM updates ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing updates: %w", err)
	}
	defer rows.Close()

	updates := []models.Update{}
	for rows.Next() {
		var (
			update        models.Update
			paperID       sql.NullInt64
			readingStatus sql.NullString
			timestamp     string
		)
		if err := rows.Scan(
			&update.ID, &paperID, &update.PaperTitle, &update.Message,
			&readingStatus, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning update row: %w", err)
		}
		update.PaperID = paperID.Int64
		update.ReadingStatus = readingStatus.String
		update.Timestamp = parseTime(timestamp)
		updates = append(updates, update)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update rows: %w", err)
	}
	return updates, nil
}

// ListUpdatesForPaper returns the activity log entries for a single paper,
// newest first.
func (s *Store) ListUpdatesForPaper(ctx context.Context, paperID int64) ([]models.Update, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, paper_id, paper_title, message, reading_status, timestamp
		 FROM updates WHERE paper_id = ? ORDER BY timestamp DESC, id DESC`, paperID)
	if err != nil {
		return nil, fmt.Errorf("listing updates for paper: %w", err)
	}
	defer rows.Close()

	updates := []models.Update{}
	for rows.Next() {
		var (
			update        models.Update
			pid           sql.NullInt64
			readingStatus sql.NullString
			timestamp     string
		)
		if err := rows.Scan(
			&update.ID, &pid, &update.PaperTitle, &update.Message,
			&readingStatus, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning update row: %w", err)
		}
		update.PaperID = pid.Int64
		update.ReadingStatus = readingStatus.String
		update.Timestamp = parseTime(timestamp)
		updates = append(updates, update)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update rows: %w", err)
	}
	return updates, nil
}
