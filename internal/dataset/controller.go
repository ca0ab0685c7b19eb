package dataset

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/metrics"
)

// Spec declares one dataset owned by a Controller.
type Spec struct {
	Name     string
	Schema   *Schema
	Disabled bool
}

// ControllerOptions apply to every dataset of a session.
type ControllerOptions struct {
	Dir     string
	Session string
	Update  bool
	// Direct makes the save after every mutation target the canonical file.
	Direct bool
}

// Predicate reports whether an id is already stored.
type Predicate func(id string) (bool, error)

// Controller is the session's sole owner of its datasets. Every mutation is
// followed by a save in the configured mode.
type Controller struct {
	order    []string
	datasets map[string]*Dataset
	direct   bool
	logger   *zap.Logger
}

// NewController opens every declared dataset.
func NewController(specs []Spec, opts ControllerOptions, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		datasets: make(map[string]*Dataset, len(specs)),
		direct:   opts.Direct,
		logger:   logger,
	}
	for _, spec := range specs {
		if _, dup := c.datasets[spec.Name]; dup {
			return nil, fmt.Errorf("dataset %q declared twice: %w", spec.Name, ErrInvalidInput)
		}
		ds, err := Open(spec.Name, spec.Schema, Options{
			Dir:      opts.Dir,
			Session:  opts.Session,
			Update:   opts.Update,
			Disabled: spec.Disabled,
		}, logger)
		if err != nil {
			return nil, err
		}
		c.order = append(c.order, spec.Name)
		c.datasets[spec.Name] = ds
	}
	return c, nil
}

// Dataset returns the named dataset.
func (c *Controller) Dataset(name string) (*Dataset, error) {
	ds, ok := c.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownDataset)
	}
	return ds, nil
}

// Names lists the datasets in declaration order.
func (c *Controller) Names() []string {
	return append([]string(nil), c.order...)
}

// Insert stages recs and saves. Rows staged before a failing row are saved too,
// so an EntityExistsError still persists the partial batch.
func (c *Controller) Insert(name string, prepend bool, recs ...Record) error {
	ds, err := c.Dataset(name)
	if err != nil {
		return err
	}
	if ds.Disabled() {
		return fmt.Errorf("insert into %s: %w", name, ErrDisabledDataset)
	}
	before := ds.Buffered()
	mutErr := ds.AddRows(recs, prepend)
	metrics.ObserveRecords(name, ds.Buffered()-before)
	return errors.Join(mutErr, c.save(ds, c.direct))
}

// Drop removes columns from the named dataset and saves.
func (c *Controller) Drop(name string, cols ...string) error {
	ds, err := c.Dataset(name)
	if err != nil {
		return err
	}
	if err := ds.DropColumns(cols...); err != nil {
		return err
	}
	return c.save(ds, c.direct)
}

// Select projects the committed rows of the named dataset onto keys.
func (c *Controller) Select(name string, keys ...string) ([]Record, error) {
	ds, err := c.Dataset(name)
	if err != nil {
		return nil, err
	}
	return ds.Select(keys...)
}

// EarlyStopping returns the named dataset's already-stored predicate.
func (c *Controller) EarlyStopping(name string) (Predicate, error) {
	ds, err := c.Dataset(name)
	if err != nil {
		return nil, err
	}
	return ds.DoesIDExist, nil
}

// Save flushes and writes the named dataset.
func (c *Controller) Save(name string, direct bool) error {
	ds, err := c.Dataset(name)
	if err != nil {
		return err
	}
	return c.save(ds, direct)
}

// Finalize saves every enabled dataset at the end of a run. A failed run writes
// progress files only, leaving the canonical files as they were.
func (c *Controller) Finalize(failed bool) error {
	var errs []error
	for _, name := range c.order {
		ds := c.datasets[name]
		if ds.Disabled() {
			continue
		}
		if err := c.save(ds, !failed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) save(ds *Dataset, direct bool) error {
	err := ds.Save(direct)
	metrics.ObserveSave(ds.Name(), direct, err)
	if err != nil {
		c.logger.Error("dataset save failed",
			zap.String("dataset", ds.Name()),
			zap.Bool("direct", direct),
			zap.Error(err),
		)
	}
	return err
}
