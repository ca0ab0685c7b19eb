package ufcstats

import "github.com/JakeFAU/fightstats-crawler/internal/dataset"

// Dataset names, which are also the CSV file stems.
const (
	Events        = "events"
	Fights        = "fights"
	Fighters      = "fighters"
	FighterFights = "fighter_fights"
)

// Columns that only exist to drive sub-crawls and are dropped afterwards.
const (
	ColFights        = "fights"
	ColWeightClass   = "weight_class"
	ColWeightClasses = "weight_classes"
	ColFightResults  = "fight_results"
	ColEventID       = "event_id"
)

// EventSchema describes events.csv.
func EventSchema() *dataset.Schema {
	return mustSchema(
		dataset.String("id"),
		dataset.String("title"),
		dataset.String("date"),
		dataset.String("location"),
		dataset.String("link"),
		dataset.List(ColFights),
		dataset.List(ColWeightClasses),
	)
}

// FightSchema describes fights.csv.
func FightSchema() *dataset.Schema {
	return mustSchema(
		dataset.String("id"),
		dataset.String(ColEventID),
		dataset.String("link"),
		dataset.String(ColWeightClass),
		dataset.String("bout"),
		dataset.String("method"),
		dataset.String("round"),
		dataset.String("time"),
		dataset.String("time_format"),
		dataset.String("referee"),
		dataset.String("details"),
		dataset.String("red_id"),
		dataset.String("red_name"),
		dataset.String("red_nickname"),
		dataset.String("red_result"),
		dataset.String("blue_id"),
		dataset.String("blue_name"),
		dataset.String("blue_nickname"),
		dataset.String("blue_result"),
	)
}

// FighterSchema describes fighters.csv.
func FighterSchema() *dataset.Schema {
	return mustSchema(
		dataset.String("id"),
		dataset.String("name"),
		dataset.String("nickname"),
		dataset.String("record"),
		dataset.String("height"),
		dataset.String("weight"),
		dataset.String("reach"),
		dataset.String("stance"),
		dataset.String("dob"),
		dataset.String("link"),
		dataset.List(ColFights),
		dataset.List(ColFightResults),
	)
}

// FighterFightSchema describes fighter_fights.csv, one row per fighter per fight.
func FighterFightSchema() *dataset.Schema {
	return mustSchema(
		dataset.String("id"),
		dataset.String("fighter_id"),
		dataset.String("fight_id"),
		dataset.String("result"),
	)
}

func mustSchema(fields ...dataset.Field) *dataset.Schema {
	s, err := dataset.NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}
