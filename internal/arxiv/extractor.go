// Package arxiv extracts ArXiv identifiers from user input and fetches
// paper metadata from the ArXiv query API.
package arxiv

import (
	"regexp"
	"strings"
)

// bareIDPattern matches a raw ArXiv identifier like "1706.03762" or
// "1706.03762v3".
var bareIDPattern = regexp.MustCompile(`^\d+\.\d+(v\d+)?$`)

// urlPatterns match the common ArXiv (and ar5iv mirror) URL shapes users
// paste in. The numeric identifier is the first capture group.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)arxiv\.org/abs/(\d+\.\d+)`),
	regexp.MustCompile(`(?i)arxiv\.org/pdf/(\d+\.\d+)`),
	regexp.MustCompile(`(?i)ar5iv\.org/abs/(\d+\.\d+)`),
	regexp.MustCompile(`(?i)ar5iv\.org/html/(\d+\.\d+)`),
}

// ExtractID parses free-form user input into a canonical ArXiv identifier.
// It accepts a bare identifier (any version suffix is stripped) or an
// arxiv.org/ar5iv.org URL in abs, pdf, or html form. The second return value
// is false when the input matches neither shape; that is the caller's cue to
// report an invalid identifier, not an error condition here.
func ExtractID(input string) (string, bool) {
	input = strings.TrimSpace(input)

	if bareIDPattern.MatchString(input) {
		// Strip the version suffix so "1706.03762v3" and "1706.03762"
		// resolve to the same paper.
		id, _, _ := strings.Cut(input, "v")
		return id, true
	}

	for _, pattern := range urlPatterns {
		if m := pattern.FindStringSubmatch(input); m != nil {
			return m[1], true
		}
	}

	return "", false
}

// AbsURL returns the canonical abstract page URL for an ArXiv identifier.
// Papers are always stored with this synthesized URL rather than whatever
// link the feed reports, so duplicate detection has a stable key.
func AbsURL(id string) string {
	return "https://arxiv.org/abs/" + id
}
