package keystone

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goodpapers/goodpapers/internal/models"
)

// Keystone has no arxiv_link field, so papers are keyed on (title, year)
// there. This diverges from the primary store's arxiv_link key: a title
// edited in the CMS after creation will resync as a new record.
const findPaperQuery = `
	query FindPaper($title: String!, $year: Int!) {
		papers(where: { title: { equals: $title }, year: { equals: $year } }) {
			id
		}
	}`

const createPaperMutation = `
	mutation CreatePaper($data: PaperCreateInput!) {
		createPaper(data: $data) {
			id
			title
		}
	}`

const updatePaperMutation = `
	mutation UpdatePaper($id: ID!, $data: PaperUpdateInput!) {
		updatePaper(where: { id: $id }, data: $data) {
			id
			title
		}
	}`

const createUpdateMutation = `
	mutation CreateUpdate($data: UpdateCreateInput!) {
		createUpdate(data: $data) {
			id
			message
		}
	}`

// SyncPaper creates or updates the Keystone record for a paper and returns
// its remote ID. An existing record (matched on title and year) receives the
// full field set; otherwise a new record is created.
func (c *Client) SyncPaper(ctx context.Context, paper *models.Paper) (string, error) {
	var found struct {
		Papers []struct {
			ID string `json:"id"`
		} `json:"papers"`
	}
	err := c.Execute(ctx, findPaperQuery, map[string]any{
		"title": paper.Title,
		"year":  paper.Year,
	}, &found)
	if err != nil {
		return "", fmt.Errorf("finding paper %q in keystone: %w", paper.Title, err)
	}

	data := map[string]any{
		"title":              paper.Title,
		"authors":            strings.Join(paper.Authors, ", "),
		"journal":            paper.Journal,
		"year":               paper.Year,
		"doi":                paper.DOI,
		"url":                paper.URL,
		"abstract":           paper.Abstract,
		"isCurrentlyReading": paper.IsCurrentlyReading,
	}
	if paper.ReadingStatus != "" {
		data["readingStatus"] = paper.ReadingStatus
	}

	if len(found.Papers) > 0 {
		id := found.Papers[0].ID
		err := c.Execute(ctx, updatePaperMutation, map[string]any{
			"id":   id,
			"data": data,
		}, nil)
		if err != nil {
			return "", fmt.Errorf("updating paper %q in keystone: %w", paper.Title, err)
		}
		return id, nil
	}

	var created struct {
		CreatePaper struct {
			ID string `json:"id"`
		} `json:"createPaper"`
	}
	err = c.Execute(ctx, createPaperMutation, map[string]any{"data": data}, &created)
	if err != nil {
		return "", fmt.Errorf("creating paper %q in keystone: %w", paper.Title, err)
	}
	return created.CreatePaper.ID, nil
}

// SyncUpdate creates the Keystone record for an activity update, connected
// to the already-synced paper by its remote ID.
func (c *Client) SyncUpdate(ctx context.Context, update *models.Update, paperID string) error {
	data := map[string]any{
		"paperTitle": update.PaperTitle,
		"message":    update.Message,
		"timestamp":  update.Timestamp.UTC().Format(time.RFC3339),
		"paper":      map[string]any{"connect": map[string]any{"id": paperID}},
	}
	if update.ReadingStatus != "" {
		data["reading_status"] = update.ReadingStatus
	}

	if err := c.Execute(ctx, createUpdateMutation, map[string]any{"data": data}, nil); err != nil {
		return fmt.Errorf("creating update %q in keystone: %w", update.Message, err)
	}
	return nil
}
