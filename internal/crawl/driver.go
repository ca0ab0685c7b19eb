// Package crawl walks the listing pages of each entity type, stops once it
// reaches records stored by an earlier run, and feeds new records to the
// dataset store.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
	"github.com/JakeFAU/fightstats-crawler/internal/metrics"
	"github.com/JakeFAU/fightstats-crawler/internal/ufcstats"
)

// DefaultFighterChars are the fighter listing letters.
var DefaultFighterChars = []string{
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
}

// Options are the run knobs.
type Options struct {
	// IgnoreErrors logs and skips failed steps instead of aborting.
	IgnoreErrors bool
	// Prepend stages each page ahead of previously buffered rows.
	Prepend bool

	SkipEvents   bool
	SkipFights   bool
	SkipFighters bool

	FighterChars []string
	// FirstPage is the first listing page, 1-based.
	FirstPage int
	// MaxPages caps pages per listing; 0 means no cap.
	MaxPages int
	// MaxConsecutiveFailures aborts an ignore-errors run whose steps keep
	// failing; 0 means no cap.
	MaxConsecutiveFailures int
	// KeepChildIDs keeps the child-id columns used to drive sub-crawls.
	KeepChildIDs bool
	// SkipExistingFighters skips stored fighters instead of ending the letter.
	// Fighter listings are alphabetical, so a stored fighter says nothing
	// about the ones after it.
	SkipExistingFighters bool
}

// Specs declares the datasets a run with opts needs. Skipped entity types get
// disabled datasets.
func Specs(opts Options) []dataset.Spec {
	return []dataset.Spec{
		// Fight-only runs read child ids from stored events.
		{Name: ufcstats.Events, Schema: ufcstats.EventSchema(), Disabled: opts.SkipEvents && opts.SkipFights},
		{Name: ufcstats.Fights, Schema: ufcstats.FightSchema(), Disabled: opts.SkipFights},
		{Name: ufcstats.Fighters, Schema: ufcstats.FighterSchema(), Disabled: opts.SkipFighters},
		{Name: ufcstats.FighterFights, Schema: ufcstats.FighterFightSchema(), Disabled: opts.SkipFighters},
	}
}

// Deps are the driver's collaborators.
type Deps struct {
	Fetcher  Fetcher
	Site     Site
	Events   EntityExtractor
	Fights   DetailExtractor
	Fighters EntityExtractor
	Store    Store
	Hasher   Hasher
	Logger   *zap.Logger
}

// Driver runs one crawl session. It is not safe for concurrent use.
type Driver struct {
	deps     Deps
	opts     Options
	logger   *zap.Logger
	failures int
}

// New validates deps and fills option defaults.
func New(deps Deps, opts Options) (*Driver, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("crawl: fetcher is required")
	case deps.Site == nil:
		return nil, errors.New("crawl: site is required")
	case deps.Events == nil || deps.Fights == nil || deps.Fighters == nil:
		return nil, errors.New("crawl: extractors are required")
	case deps.Store == nil:
		return nil, errors.New("crawl: store is required")
	case deps.Hasher == nil:
		return nil, errors.New("crawl: hasher is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.FirstPage < 1 {
		opts.FirstPage = 1
	}
	if len(opts.FighterChars) == 0 {
		opts.FighterChars = DefaultFighterChars
	}
	return &Driver{deps: deps, opts: opts, logger: deps.Logger.Named("crawl")}, nil
}

// Run crawls every entity type that is not skipped. The returned error is the
// first one not tolerated; the caller decides how to save.
func (d *Driver) Run(ctx context.Context) error {
	switch {
	case !d.opts.SkipEvents:
		if err := d.crawlEvents(ctx); err != nil {
			return err
		}
	case !d.opts.SkipFights:
		if err := d.crawlStoredEventFights(ctx); err != nil {
			return err
		}
	}
	if !d.opts.SkipFighters {
		if err := d.crawlFighters(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) crawlEvents(ctx context.Context) error {
	d.logger.Info("crawling events")
	err := d.paginate(ctx, ufcstats.Events, d.deps.Events, d.deps.Site.EventsPage, true, d.eventDetail)
	if err != nil {
		return err
	}
	if d.opts.KeepChildIDs {
		return nil
	}
	return d.deps.Store.Drop(ufcstats.Events, ufcstats.ColFights, ufcstats.ColWeightClasses)
}

func (d *Driver) crawlFighters(ctx context.Context) error {
	for _, char := range d.opts.FighterChars {
		d.logger.Info("crawling fighters", zap.String("char", char))
		pageURL := func(page int) string { return d.deps.Site.FightersPage(char, page) }
		err := d.paginate(ctx, ufcstats.Fighters, d.deps.Fighters, pageURL, !d.opts.SkipExistingFighters, d.fighterDetail)
		if err != nil {
			return err
		}
	}
	return d.projectFighterFights()
}

type detailFunc func(ctx context.Context, id string) (dataset.Record, error)

// paginate walks one listing until it runs out, repeats itself, reaches a
// stored id, or hits the page cap.
func (d *Driver) paginate(
	ctx context.Context,
	entity string,
	listing ListingExtractor,
	pageURL func(page int) string,
	stopOnHit bool,
	detail detailFunc,
) error {
	exists, err := d.deps.Store.EarlyStopping(entity)
	if err != nil {
		return err
	}
	var previous []string
	for page := d.opts.FirstPage; d.opts.MaxPages == 0 || page < d.opts.FirstPage+d.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl %s: %w", entity, err)
		}
		// Only an extracted detail resets the failure count; a page whose
		// details all failed still returns nil.
		burst, err := d.page(ctx, entity, listing, pageURL(page), &previous, exists, stopOnHit, detail)
		if errors.Is(err, dataset.ErrEntityExists) {
			d.logger.Info("reached stored entity, keeping partial page",
				zap.String("entity", entity),
				zap.Int("page", page),
				zap.Error(err),
			)
			metrics.ObservePage(entity, StopBurst.String())
			return nil
		}
		if err != nil {
			if terr := d.tolerate(entity, err); terr != nil {
				return terr
			}
			metrics.ObservePage(entity, "failed")
			continue
		}

		metrics.ObservePage(entity, burst.Outcome.String())
		d.logger.Info("page done",
			zap.String("entity", entity),
			zap.Int("page", page),
			zap.Int("records", len(burst.Records)),
			zap.Stringer("outcome", burst.Outcome),
		)
		if burst.Outcome != Continue {
			return nil
		}
	}
	d.logger.Info("page cap reached", zap.String("entity", entity), zap.Int("max_pages", d.opts.MaxPages))
	return nil
}

func (d *Driver) page(
	ctx context.Context,
	entity string,
	listing ListingExtractor,
	url string,
	previous *[]string,
	exists dataset.Predicate,
	stopOnHit bool,
	detail detailFunc,
) (Burst, error) {
	doc, err := d.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		return Burst{}, err
	}
	ids, err := listing.ExtractListing(doc)
	if err != nil {
		return Burst{}, fmt.Errorf("%s listing %s: %w", entity, url, err)
	}
	if len(ids) == 0 {
		return Burst{Outcome: Exhausted}, nil
	}
	// Past the last page some listings repeat the final page.
	if slices.Equal(ids, *previous) {
		return Burst{Outcome: Exhausted}, nil
	}
	*previous = ids

	burst, err := d.collect(ctx, entity, ids, exists, stopOnHit, detail)
	if err != nil && !errors.Is(err, dataset.ErrEntityExists) {
		return burst, err
	}
	// Records gathered before a stored entity was hit are still inserted.
	if len(burst.Records) > 0 {
		if ierr := d.deps.Store.Insert(entity, d.opts.Prepend, burst.Records...); ierr != nil {
			return burst, ierr
		}
	}
	return burst, err
}

// collect fetches the detail of each id in listing order. A stored id ends the
// burst at once when stopOnHit is set; otherwise it is skipped.
func (d *Driver) collect(
	ctx context.Context,
	entity string,
	ids []string,
	exists dataset.Predicate,
	stopOnHit bool,
	detail detailFunc,
) (Burst, error) {
	burst := Burst{Outcome: Continue}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return burst, fmt.Errorf("crawl %s: %w", entity, err)
		}
		seen, err := exists(id)
		if err != nil {
			return burst, err
		}
		if seen {
			if !stopOnHit {
				continue
			}
			d.logger.Info("early stop on stored id", zap.String("entity", entity), zap.String("id", id))
			metrics.ObserveEarlyStop(entity)
			burst.Outcome = StopBurst
			return burst, nil
		}
		rec, err := detail(ctx, id)
		if err != nil {
			if errors.Is(err, dataset.ErrEntityExists) {
				return burst, err
			}
			if terr := d.tolerate(entity, fmt.Errorf("%s %s: %w", entity, id, err)); terr != nil {
				return burst, terr
			}
			continue
		}
		d.succeeded()
		burst.Records = append(burst.Records, rec)
	}
	return burst, nil
}

// tolerate applies the error policy to a failed step: nil means skip it and go on.
func (d *Driver) tolerate(entity string, err error) error {
	var giveUp *giveUpError
	if errors.As(err, &giveUp) {
		return err
	}
	if !d.opts.IgnoreErrors || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Configuration errors are never a single page's fault.
	if errors.Is(err, dataset.ErrDisabledDataset) || errors.Is(err, dataset.ErrUnknownDataset) {
		return err
	}
	d.failures++
	metrics.ObserveIgnoredError(entity)
	d.logger.Warn("ignoring failed step",
		zap.String("entity", entity),
		zap.Int("consecutive_failures", d.failures),
		zap.Error(err),
	)
	if d.opts.MaxConsecutiveFailures > 0 && d.failures >= d.opts.MaxConsecutiveFailures {
		return &giveUpError{failures: d.failures, err: err}
	}
	return nil
}

// giveUpError ends an ignore-errors run. It passes through outer tolerate calls
// unchanged.
type giveUpError struct {
	failures int
	err      error
}

func (e *giveUpError) Error() string {
	return fmt.Sprintf("giving up after %d consecutive failures: %v", e.failures, e.err)
}

func (e *giveUpError) Unwrap() error { return e.err }

func (d *Driver) succeeded() {
	d.failures = 0
}
