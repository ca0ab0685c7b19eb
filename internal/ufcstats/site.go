package ufcstats

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the public site root.
const DefaultBaseURL = "http://ufcstats.com/"

// Site builds page URLs relative to a base.
type Site struct {
	base string
}

// NewSite validates base and returns a Site rooted at it.
func NewSite(base string) (Site, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Site{}, fmt.Errorf("invalid base url %q", base)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Site{base: base}, nil
}

// EventsPage is page n (1-based) of the completed events listing, newest first.
func (s Site) EventsPage(page int) string {
	return fmt.Sprintf("%sstatistics/events/completed?page=%d", s.base, page)
}

// FightersPage is page n of the fighters whose last name starts with char.
func (s Site) FightersPage(char string, page int) string {
	return fmt.Sprintf("%sstatistics/fighters?char=%s&page=%d", s.base, url.QueryEscape(char), page)
}

// EventURL is an event's detail page.
func (s Site) EventURL(id string) string { return s.base + "event-details/" + id }

// FightURL is a fight's detail page.
func (s Site) FightURL(id string) string { return s.base + "fight-details/" + id }

// FighterURL is a fighter's detail page.
func (s Site) FighterURL(id string) string { return s.base + "fighter-details/" + id }
