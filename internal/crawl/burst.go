package crawl

import "github.com/JakeFAU/fightstats-crawler/internal/dataset"

// Outcome tells the paginator what to do after a page.
type Outcome int

// Page outcomes.
const (
	// Continue moves on to the next page.
	Continue Outcome = iota
	// StopBurst ends pagination because a stored id was reached. Records
	// gathered before it are kept.
	StopBurst
	// Exhausted ends pagination because the listing ran out.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case StopBurst:
		return "stop_burst"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Burst is what one listing page produced.
type Burst struct {
	Records []dataset.Record
	Outcome Outcome
}
