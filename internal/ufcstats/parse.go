package ufcstats

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotFound reports markup an extractor requires but the page lacks.
var ErrNotFound = errors.New("element not found")

// IDFromURL returns the last path segment of a detail link.
func IDFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", raw, err)
	}
	path := strings.TrimRight(u.Path, "/")
	id := path[strings.LastIndex(path, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("no id in link %q: %w", raw, ErrNotFound)
	}
	return id, nil
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripLabel removes a leading "Label:" from s, ignoring case.
func stripLabel(s, label string) string {
	s = CleanText(s)
	if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
		s = s[len(label):]
	}
	return strings.TrimSpace(s)
}

// labelKey turns "Time format:" into "time format".
func labelKey(label string) string {
	return strings.ToLower(strings.TrimSuffix(CleanText(label), ":"))
}

func requireOne(sel *goquery.Selection, selector string) (*goquery.Selection, error) {
	found := sel.Find(selector)
	if found.Length() == 0 {
		return nil, fmt.Errorf("%q: %w", selector, ErrNotFound)
	}
	return found.First(), nil
}

func requireText(sel *goquery.Selection, selector string) (string, error) {
	found, err := requireOne(sel, selector)
	if err != nil {
		return "", err
	}
	return CleanText(found.Text()), nil
}

func requireAttr(sel *goquery.Selection, attr string) (string, error) {
	v, ok := sel.Attr(attr)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("attribute %q: %w", attr, ErrNotFound)
	}
	return strings.TrimSpace(v), nil
}

// linkIDs collects the ids of the links matched by selector, in document order
// and without repeats.
func linkIDs(sel *goquery.Selection, selector, attr string) ([]string, error) {
	ids := []string{}
	seen := map[string]bool{}
	var err error
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var link, id string
		if link, err = requireAttr(s, attr); err != nil {
			return false
		}
		if id, err = IDFromURL(link); err != nil {
			return false
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%q: %w", selector, err)
	}
	return ids, nil
}

// listingIDs reads the ids of a statistics listing table.
func listingIDs(doc *goquery.Document) ([]string, error) {
	table, err := requireOne(doc.Selection, "table.b-statistics__table")
	if err != nil {
		return nil, err
	}
	return linkIDs(table, "tr.b-statistics__table-row a.b-link", "href")
}

func docLink(doc *goquery.Document) string {
	if doc.Url == nil {
		return ""
	}
	return doc.Url.String()
}

// NormalizeResult maps the site's result flags to WIN, LOSS, DRAW or NO CONTEST.
func NormalizeResult(flag string) string {
	switch strings.ToUpper(CleanText(flag)) {
	case "W", "WIN":
		return "WIN"
	case "L", "LOSS":
		return "LOSS"
	case "D", "DRAW":
		return "DRAW"
	default:
		return "NO CONTEST"
	}
}
