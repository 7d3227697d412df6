// Package models defines the domain types shared across the goodpapers
// server: papers, their reading lifecycle, and the activity updates that
// record every status transition.
package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reading statuses a paper can be in. A paper always has exactly one.
const (
	StatusAddToLibrary    = "add_to_library"
	StatusWantToRead      = "want_to_read"
	StatusStartedReading  = "started_reading"
	StatusFinishedReading = "finished_reading"
)

// validReadingStatuses is the set of allowed reading statuses.
var validReadingStatuses = map[string]bool{
	StatusAddToLibrary:    true,
	StatusWantToRead:      true,
	StatusStartedReading:  true,
	StatusFinishedReading: true,
}

// ValidReadingStatus reports whether status is one of the four known
// reading statuses.
func ValidReadingStatus(status string) bool {
	return validReadingStatuses[status]
}

// IsCurrentlyReading derives the currently-reading flag from a reading
// status. It is true only while a paper is in started_reading.
func IsCurrentlyReading(status string) bool {
	return status == StatusStartedReading
}

// StatusMessage returns the human-readable activity message for a reading
// status transition. A paper moving back to the library after having been
// elsewhere reads "Moved to library" rather than "Added to library", so the
// existing flag distinguishes a fresh insert from a status change.
func StatusMessage(status string, existing bool) string {
	switch status {
	case StatusWantToRead:
		return `Added to "Want to Read" list`
	case StatusStartedReading:
		return "Started reading"
	case StatusFinishedReading:
		return "Finished reading"
	default:
		if existing {
			return "Moved to library"
		}
		return "Added to library"
	}
}

// Paper represents a research paper in the library. Slug is derived from the
// title and year on every read, never stored.
type Paper struct {
	ID                 int64     `json:"id"`
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	Authors            []string  `json:"authors"`
	Journal            string    `json:"journal,omitempty"`
	Year               int       `json:"year"`
	DOI                string    `json:"doi,omitempty"`
	URL                string    `json:"url,omitempty"`
	ArxivLink          string    `json:"arxivLink,omitempty"`
	Abstract           string    `json:"abstract,omitempty"`
	IsCurrentlyReading bool      `json:"isCurrentlyReading"`
	ReadingStatus      string    `json:"readingStatus"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Update is an append-only activity log entry recording a paper being added
// or changing reading status. PaperTitle is a snapshot taken at the time of
// the event and is never refreshed afterwards.
type Update struct {
	ID            int64     `json:"id"`
	PaperID       int64     `json:"paperId"`
	PaperTitle    string    `json:"paperTitle"`
	Message       string    `json:"message"`
	ReadingStatus string    `json:"readingStatus,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ArxivPaper holds the metadata fetched from the ArXiv API for a single
// identifier, normalized but not yet persisted.
type ArxivPaper struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract,omitempty"`
	Year      int      `json:"year"`
	DOI       string   `json:"doi,omitempty"`
	Journal   string   `json:"journal,omitempty"`
	URL       string   `json:"url"`
	ArxivLink string   `json:"arxivLink"`
}

var slugStripPattern = regexp.MustCompile(`[^\w\s-]`)
var slugSpacePattern = regexp.MustCompile(`\s+`)

// Slug builds the URL-safe identifier for a paper: the lowercased title with
// punctuation stripped and spaces replaced by hyphens, followed by the year.
// The transformation is lossy; two titles differing only in punctuation
// produce the same slug.
func Slug(title string, year int) string {
	s := strings.ToLower(title)
	s = slugStripPattern.ReplaceAllString(s, "")
	s = slugSpacePattern.ReplaceAllString(s, "-")
	return s + "-" + strconv.Itoa(year)
}
