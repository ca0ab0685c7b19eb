package crawl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
	"github.com/JakeFAU/fightstats-crawler/internal/ufcstats"
)

// eventDetail extracts an event and, unless fights are skipped, crawls its
// fights before the event itself is inserted.
func (d *Driver) eventDetail(ctx context.Context, id string) (dataset.Record, error) {
	doc, err := d.deps.Fetcher.Fetch(ctx, d.deps.Site.EventURL(id))
	if err != nil {
		return nil, err
	}
	rec, err := d.deps.Events.ExtractDetail(doc, id)
	if err != nil {
		return nil, err
	}
	if d.opts.SkipFights {
		return rec, nil
	}
	fights, weights := listField(rec, ufcstats.ColFights), listField(rec, ufcstats.ColWeightClasses)
	if err := d.crawlEventFights(ctx, id, fights, weights); err != nil {
		return nil, err
	}
	return rec, nil
}

// crawlEventFights runs one fight burst over an event's child ids and inserts
// what it found.
func (d *Driver) crawlEventFights(ctx context.Context, eventID string, fightIDs, weights []string) error {
	if len(fightIDs) == 0 {
		return nil
	}
	exists, err := d.deps.Store.EarlyStopping(ufcstats.Fights)
	if err != nil {
		return err
	}
	weightOf := make(map[string]string, len(fightIDs))
	for i, id := range fightIDs {
		if i < len(weights) {
			weightOf[id] = weights[i]
		}
	}
	detail := func(ctx context.Context, id string) (dataset.Record, error) {
		doc, err := d.deps.Fetcher.Fetch(ctx, d.deps.Site.FightURL(id))
		if err != nil {
			return nil, err
		}
		rec, err := d.deps.Fights.ExtractDetail(doc, id)
		if err != nil {
			return nil, err
		}
		rec[ufcstats.ColEventID] = eventID
		rec[ufcstats.ColWeightClass] = weightOf[id]
		return rec, nil
	}

	burst, err := d.collect(ctx, ufcstats.Fights, fightIDs, exists, true, detail)
	if err != nil {
		return err
	}
	if len(burst.Records) == 0 {
		return nil
	}
	err = d.deps.Store.Insert(ufcstats.Fights, d.opts.Prepend, burst.Records...)
	if errors.Is(err, dataset.ErrEntityExists) {
		d.logger.Info("fight already stored, keeping partial fights",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// crawlStoredEventFights drives fight bursts from events stored by earlier
// runs that kept their child-id columns.
func (d *Driver) crawlStoredEventFights(ctx context.Context) error {
	d.logger.Info("crawling fights of stored events")
	events, err := d.deps.Store.Select(ufcstats.Events, "id", ufcstats.ColFights, ufcstats.ColWeightClasses)
	if err != nil {
		return fmt.Errorf("stored events: %w", err)
	}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl fights: %w", err)
		}
		err := d.crawlEventFights(ctx, ev.ID(), listField(ev, ufcstats.ColFights), listField(ev, ufcstats.ColWeightClasses))
		if err == nil {
			continue
		}
		if terr := d.tolerate(ufcstats.Fights, fmt.Errorf("event %s: %w", ev.ID(), err)); terr != nil {
			return terr
		}
	}
	return nil
}

func listField(rec dataset.Record, key string) []string {
	v, _ := rec[key].([]string)
	return v
}
