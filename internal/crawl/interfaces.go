package crawl

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
)

// Fetcher returns a parsed page, retrying transient failures internally.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// ListingExtractor reads the ordered entity ids of a listing page. An empty
// result means pagination is over; a missing listing is an error.
type ListingExtractor interface {
	ExtractListing(doc *goquery.Document) ([]string, error)
}

// DetailExtractor turns an entity's detail page into a record.
type DetailExtractor interface {
	ExtractDetail(doc *goquery.Document, id string) (dataset.Record, error)
}

// EntityExtractor handles both page kinds of a listed entity.
type EntityExtractor interface {
	ListingExtractor
	DetailExtractor
}

// Site builds the URLs the driver visits.
type Site interface {
	EventsPage(page int) string
	FightersPage(char string, page int) string
	EventURL(id string) string
	FightURL(id string) string
	FighterURL(id string) string
}

// Store is the dataset surface the driver writes through.
type Store interface {
	Insert(name string, prepend bool, recs ...dataset.Record) error
	Drop(name string, cols ...string) error
	Select(name string, keys ...string) ([]dataset.Record, error)
	EarlyStopping(name string) (dataset.Predicate, error)
}

// Hasher derives ids from composite keys.
type Hasher interface {
	Key(parts ...string) (string, error)
}
