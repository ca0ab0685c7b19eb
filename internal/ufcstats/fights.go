package ufcstats

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
)

// FightExtractor reads fight detail pages. Fights have no listing of their
// own; their ids come from the parent event.
type FightExtractor struct{}

// ExtractDetail returns a fight record. event_id and weight_class are left to
// the caller, who knows the parent event.
func (FightExtractor) ExtractDetail(doc *goquery.Document, id string) (dataset.Record, error) {
	people := doc.Find("div.b-fight-details__person")
	if people.Length() != 2 {
		return nil, fmt.Errorf("fight %s: want 2 corners, found %d: %w", id, people.Length(), ErrNotFound)
	}
	bout, err := requireText(doc.Selection, "i.b-fight-details__fight-title")
	if err != nil {
		return nil, fmt.Errorf("fight %s: %w", id, err)
	}
	info, err := requireOne(doc.Selection, "p.b-fight-details__text")
	if err != nil {
		return nil, fmt.Errorf("fight %s: %w", id, err)
	}
	items := textItems(info)
	method, ok := items["method"]
	if !ok {
		return nil, fmt.Errorf("fight %s: method: %w", id, ErrNotFound)
	}

	rec := dataset.Record{
		"id":          id,
		"link":        docLink(doc),
		"bout":        bout,
		"method":      method,
		"round":       items["round"],
		"time":        items["time"],
		"time_format": items["time format"],
		"referee":     items["referee"],
		"details":     fightDetails(doc),
	}
	for i, corner := range []string{"red", "blue"} {
		if err := cornerInto(rec, corner, people.Eq(i)); err != nil {
			return nil, fmt.Errorf("fight %s: %s corner: %w", id, corner, err)
		}
	}
	return rec, nil
}

func cornerInto(rec dataset.Record, corner string, person *goquery.Selection) error {
	anchor, err := requireOne(person, "h3.b-fight-details__person-name a")
	if err != nil {
		return err
	}
	link, err := requireAttr(anchor, "href")
	if err != nil {
		return err
	}
	fighterID, err := IDFromURL(link)
	if err != nil {
		return err
	}
	status, err := requireText(person, "i.b-fight-details__person-status")
	if err != nil {
		return err
	}
	nickname := strings.Trim(CleanText(person.Find("p.b-fight-details__person-title").Text()), `"`)

	rec[corner+"_id"] = fighterID
	rec[corner+"_name"] = CleanText(anchor.Text())
	rec[corner+"_nickname"] = strings.TrimSpace(nickname)
	rec[corner+"_result"] = NormalizeResult(status)
	return nil
}

// textItems reads "Label: value" pairs such as Method, Round and Referee.
func textItems(sel *goquery.Selection) map[string]string {
	out := map[string]string{}
	sel.Find("i.b-fight-details__text-item_first, i.b-fight-details__text-item").Each(func(_ int, item *goquery.Selection) {
		label := item.Find("i.b-fight-details__label").First()
		if label.Length() == 0 {
			return
		}
		key := labelKey(label.Text())
		out[key] = stripLabel(item.Text(), CleanText(label.Text()))
	})
	return out
}

func fightDetails(doc *goquery.Document) string {
	p := doc.Find("p.b-fight-details__text").Eq(1)
	if p.Length() == 0 {
		return ""
	}
	return stripLabel(p.Text(), "Details:")
}
