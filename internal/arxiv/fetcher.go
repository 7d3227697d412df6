package arxiv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goodpapers/goodpapers/internal/models"
	"github.com/mmcdole/gofeed"
)

// DefaultBaseURL is the public ArXiv query endpoint.
const DefaultBaseURL = "http://export.arxiv.org/api/query"

const defaultTimeout = 30 * time.Second

// ErrNotFound is returned when the ArXiv feed contains no entry for the
// requested identifier.
var ErrNotFound = errors.New("no paper found for the given ArXiv ID")

// Client fetches paper metadata from the ArXiv query API. The API returns
// an Atom feed with one entry per identifier.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client against the given query endpoint. An empty
// baseURL selects the public ArXiv API; a zero timeout selects 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and normalizes the metadata for a single ArXiv identifier.
// It returns ErrNotFound when the feed has no entries, and a wrapped error
// on network failure or malformed XML.
func (c *Client) Fetch(ctx context.Context, id string) (*models.ArxivPaper, error) {
	query := url.Values{}
	query.Set("id_list", id)
	feedURL := c.baseURL + "?" + query.Encode()

	fp := gofeed.NewParser()
	fp.Client = c.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("querying arxiv for %q: %w", id, err)
	}

	// ArXiv answers unknown identifiers with an empty feed (or an error
	// entry with no authors) rather than an HTTP error.
	if len(feed.Items) == 0 {
		return nil, ErrNotFound
	}
	entry := feed.Items[0]
	if entry.Title == "" && len(entry.Authors) == 0 {
		return nil, ErrNotFound
	}

	paper := &models.ArxivPaper{
		Title:     collapseWhitespace(entry.Title),
		Abstract:  collapseWhitespace(entry.Description),
		DOI:       extensionValue(entry, "doi"),
		Journal:   extensionValue(entry, "journal_ref"),
		URL:       AbsURL(id),
		ArxivLink: AbsURL(id),
	}

	for _, author := range entry.Authors {
		if author != nil && author.Name != "" {
			paper.Authors = append(paper.Authors, author.Name)
		}
	}

	// The year comes from the published date, not the updated date, so a
	// revised paper keeps its original year.
	if entry.PublishedParsed != nil {
		paper.Year = entry.PublishedParsed.Year()
	}

	return paper, nil
}

// extensionValue reads an arxiv-namespaced extension element like
// <arxiv:doi> or <arxiv:journal_ref> from a feed entry. Missing elements
// yield an empty string.
func extensionValue(item *gofeed.Item, name string) string {
	exts, ok := item.Extensions["arxiv"]
	if !ok {
		return ""
	}
	values := exts[name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// collapseWhitespace trims s and collapses embedded newlines and runs of
// whitespace into single spaces. ArXiv wraps titles and abstracts with hard
// line breaks.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
