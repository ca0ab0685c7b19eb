package crawl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
	"github.com/JakeFAU/fightstats-crawler/internal/ufcstats"
)

func (d *Driver) fighterDetail(ctx context.Context, id string) (dataset.Record, error) {
	doc, err := d.deps.Fetcher.Fetch(ctx, d.deps.Site.FighterURL(id))
	if err != nil {
		return nil, err
	}
	return d.deps.Fighters.ExtractDetail(doc, id)
}

// projectFighterFights flattens each fighter's fights and fight_results into
// fighter_fights rows, then drops those columns from fighters.
func (d *Driver) projectFighterFights() error {
	fighters, err := d.deps.Store.Select(ufcstats.Fighters, "id", ufcstats.ColFights, ufcstats.ColFightResults)
	if err != nil {
		return fmt.Errorf("project fighter fights: %w", err)
	}
	exists, err := d.deps.Store.EarlyStopping(ufcstats.FighterFights)
	if err != nil {
		return err
	}

	var rows []dataset.Record
	seen := map[string]bool{}
	for _, f := range fighters {
		fighterID := f.ID()
		results := listField(f, ufcstats.ColFightResults)
		for i, fightID := range listField(f, ufcstats.ColFights) {
			id, err := d.deps.Hasher.Key(fighterID, fightID)
			if err != nil {
				return fmt.Errorf("fighter fight id: %w", err)
			}
			stored, err := exists(id)
			if err != nil {
				return err
			}
			if stored || seen[id] {
				continue
			}
			seen[id] = true
			result := ""
			if i < len(results) {
				result = results[i]
			}
			rows = append(rows, dataset.Record{
				"id":         id,
				"fighter_id": fighterID,
				"fight_id":   fightID,
				"result":     result,
			})
		}
	}

	if len(rows) > 0 {
		err := d.deps.Store.Insert(ufcstats.FighterFights, false, rows...)
		if err != nil && !errors.Is(err, dataset.ErrEntityExists) {
			return err
		}
	}
	d.logger.Info("projected fighter fights", zap.Int("rows", len(rows)))

	if d.opts.KeepChildIDs {
		return nil
	}
	return d.deps.Store.Drop(ufcstats.Fighters, ufcstats.ColFights, ufcstats.ColFightResults)
}
