package ufcstats

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
)

// FighterExtractor reads the per-letter fighter listing and fighter detail pages.
type FighterExtractor struct{}

// ExtractListing returns fighter ids in listing order.
func (FighterExtractor) ExtractListing(doc *goquery.Document) ([]string, error) {
	ids, err := listingIDs(doc)
	if err != nil {
		return nil, fmt.Errorf("fighter listing: %w", err)
	}
	return ids, nil
}

// ExtractDetail returns a fighter record. fights and fight_results are aligned
// and cover completed bouts only.
func (FighterExtractor) ExtractDetail(doc *goquery.Document, id string) (dataset.Record, error) {
	name, err := requireText(doc.Selection, "span.b-content__title-highlight")
	if err != nil {
		return nil, fmt.Errorf("fighter %s: %w", id, err)
	}
	record, err := requireText(doc.Selection, "span.b-content__title-record")
	if err != nil {
		return nil, fmt.Errorf("fighter %s: %w", id, err)
	}
	info := boxItems(doc.Selection)

	fights := []string{}
	results := []string{}
	var rowErr error
	doc.Find("tbody.b-fight-details__table-body tr.b-fight-details__table-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link, ok := row.Attr("data-link")
		if !ok || strings.TrimSpace(link) == "" {
			// Spacer rows carry no link.
			return true
		}
		flag := strings.ToLower(CleanText(row.Find("i.b-flag__text").First().Text()))
		if flag == "next" {
			return true
		}
		fightID, err := IDFromURL(link)
		if err != nil {
			rowErr = err
			return false
		}
		fights = append(fights, fightID)
		results = append(results, NormalizeResult(flag))
		return true
	})
	if rowErr != nil {
		return nil, fmt.Errorf("fighter %s: fight row: %w", id, rowErr)
	}

	return dataset.Record{
		"id":            id,
		"name":          name,
		"nickname":      CleanText(doc.Find("p.b-content__Nickname").First().Text()),
		"record":        stripLabel(record, "Record:"),
		"height":        info["height"],
		"weight":        info["weight"],
		"reach":         info["reach"],
		"stance":        info["stance"],
		"dob":           info["dob"],
		"link":          docLink(doc),
		ColFights:       fights,
		ColFightResults: results,
	}, nil
}
