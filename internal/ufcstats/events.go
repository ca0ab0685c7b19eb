package ufcstats

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
)

// EventExtractor reads the completed-events listing and event detail pages.
type EventExtractor struct{}

// ExtractListing returns event ids in listing order.
func (EventExtractor) ExtractListing(doc *goquery.Document) ([]string, error) {
	ids, err := listingIDs(doc)
	if err != nil {
		return nil, fmt.Errorf("event listing: %w", err)
	}
	return ids, nil
}

// ExtractDetail returns an event record. Its fights and weight_classes lists are
// aligned: weight_classes[i] belongs to fights[i].
func (EventExtractor) ExtractDetail(doc *goquery.Document, id string) (dataset.Record, error) {
	title, err := requireText(doc.Selection, "span.b-content__title-highlight")
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}
	info := boxItems(doc.Selection)
	date, ok := info["date"]
	if !ok {
		return nil, fmt.Errorf("event %s: date: %w", id, ErrNotFound)
	}

	body, err := requireOne(doc.Selection, "tbody.b-fight-details__table-body")
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}
	fights := []string{}
	weights := []string{}
	var rowErr error
	body.Find("tr.b-fight-details__table-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link, err := requireAttr(row, "data-link")
		if err != nil {
			rowErr = err
			return false
		}
		fightID, err := IDFromURL(link)
		if err != nil {
			rowErr = err
			return false
		}
		fights = append(fights, fightID)
		weights = append(weights, CleanText(row.Find("td:nth-child(7)").Text()))
		return true
	})
	if rowErr != nil {
		return nil, fmt.Errorf("event %s: fight row: %w", id, rowErr)
	}

	return dataset.Record{
		"id":             id,
		"title":          title,
		"date":           date,
		"location":       info["location"],
		"link":           docLink(doc),
		ColFights:        fights,
		ColWeightClasses: weights,
	}, nil
}

// boxItems reads the "Label: value" list items of a details box, keyed by
// lower-cased label.
func boxItems(sel *goquery.Selection) map[string]string {
	out := map[string]string{}
	sel.Find("li.b-list__box-list-item").Each(func(_ int, li *goquery.Selection) {
		label := li.Find("i.b-list__box-item-title").First()
		if label.Length() == 0 {
			return
		}
		key := labelKey(label.Text())
		if key == "" {
			return
		}
		if _, dup := out[key]; dup {
			return
		}
		out[key] = stripLabel(li.Text(), CleanText(label.Text()))
	})
	return out
}
