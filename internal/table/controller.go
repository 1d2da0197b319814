// Package table is the in-memory model behind the editable results table.
//
// A Controller holds a baseline record set and, while editing, a scratch copy.
// Edits only ever touch the scratch buffer; Commit hands it to a Saver and
// promotes it to the baseline only when the save succeeds, and Discard drops
// it. A Controller is not safe for concurrent use.
package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hyperengineering/mocklens/pkg/item"
	"golang.org/x/text/language"
)

var (
	// ErrValidationNoop marks an edit that referenced nothing and was ignored.
	ErrValidationNoop = errors.New("edit ignored")
	// ErrNotEditing is returned by Commit outside edit mode.
	ErrNotEditing = errors.New("not in edit mode")
)

// Saver persists a committed record set. A non-nil returned set replaces the
// baseline; otherwise the committed set does.
type Saver interface {
	Save(ctx context.Context, records []item.Record) ([]item.Record, error)
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, records []item.Record) ([]item.Record, error)

// Save calls f.
func (f SaverFunc) Save(ctx context.Context, records []item.Record) ([]item.Record, error) {
	return f(ctx, records)
}

// Controller owns a record set and the table state derived from it.
type Controller struct {
	baseline []item.Record
	scratch  []item.Record
	editing  bool

	query    Query
	selected map[int]struct{}

	locale language.Tag
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocale sets the collation locale used for string sorting.
func WithLocale(tag language.Tag) Option {
	return func(c *Controller) { c.locale = tag }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPageSize sets the initial page size of the current query.
func WithPageSize(n int) Option {
	return func(c *Controller) { c.query.PageSize = n }
}

// New creates a Controller whose baseline is a copy of records.
func New(records []item.Record, opts ...Option) *Controller {
	c := &Controller{
		baseline: item.Clone(records),
		query:    Query{Page: 1},
		selected: make(map[int]struct{}),
		locale:   language.English,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Editing reports whether a scratch buffer is active.
func (c *Controller) Editing() bool { return c.editing }

// Baseline returns a copy of the committed record set.
func (c *Controller) Baseline() []item.Record { return item.Clone(c.baseline) }

// Records returns a copy of the working set: the scratch buffer while
// editing, the baseline otherwise.
func (c *Controller) Records() []item.Record { return item.Clone(c.working()) }

func (c *Controller) working() []item.Record {
	if c.editing {
		return c.scratch
	}
	return c.baseline
}

// EnterEditMode snapshots the baseline into a scratch buffer. Calling it
// while already editing keeps the existing scratch buffer.
func (c *Controller) EnterEditMode() {
	if c.editing {
		return
	}
	c.scratch = item.Clone(c.baseline)
	c.editing = true
}

// SetField writes value into one field of the scratch record with the given
// id, coerced to the field's domain. Edits outside edit mode, to an unknown
// id, or to a read-only field are logged and return an error wrapping
// ErrValidationNoop; nothing is changed.
func (c *Controller) SetField(id int, field Field, value string) error {
	if !c.editing {
		return c.noop(id, field, "not in edit mode")
	}
	i := c.index(id)
	if i == -1 {
		return c.noop(id, field, "no such record")
	}
	next := c.scratch[i]
	if !field.apply(&next, value) {
		return c.noop(id, field, "field is not editable")
	}
	c.scratch[i] = next
	return nil
}

func (c *Controller) noop(id int, field Field, reason string) error {
	c.logger.Warn("edit ignored",
		"component", "table",
		"id", id,
		"field", string(field),
		"reason", reason,
	)
	return fmt.Errorf("%w: %s (id %d, field %q)", ErrValidationNoop, reason, id, field)
}

func (c *Controller) index(id int) int {
	for i, r := range c.scratch {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// AddRow appends a record with default values to the scratch buffer and
// returns its id.
func (c *Controller) AddRow() (int, error) {
	if !c.editing {
		return 0, c.noop(0, "", "not in edit mode")
	}
	maxID, maxSeq := 0, 0
	for _, r := range c.scratch {
		maxID = max(maxID, r.ID)
		maxSeq = max(maxSeq, r.SequenceIndex)
	}
	r := item.New(maxID + 1)
	r.SequenceIndex = maxSeq + 1
	c.scratch = append(c.scratch, r)
	return r.ID, nil
}

// Commit saves the scratch buffer. On success the saved set becomes the
// baseline and edit mode ends. On failure the baseline and the scratch
// buffer are both left as they were, so no edit is lost, and the saver's
// error is returned.
func (c *Controller) Commit(ctx context.Context, saver Saver) error {
	if !c.editing {
		return ErrNotEditing
	}
	pending := item.Clone(c.scratch)
	saved, err := saver.Save(ctx, pending)
	if err != nil {
		c.logger.Error("commit failed",
			"component", "table",
			"records", len(pending),
			"error", err,
		)
		return fmt.Errorf("save records: %w", err)
	}
	if saved != nil {
		pending = item.Clone(saved)
	}
	c.baseline = pending
	c.scratch = nil
	c.editing = false
	c.pruneSelection()
	c.logger.Info("commit succeeded",
		"component", "table",
		"records", len(c.baseline),
	)
	return nil
}

// Discard leaves edit mode and drops the scratch buffer.
func (c *Controller) Discard() {
	c.scratch = nil
	c.editing = false
	c.pruneSelection()
}

// Select adds ids present in the working set to the selection.
func (c *Controller) Select(ids ...int) {
	present := c.idSet()
	for _, id := range ids {
		if _, ok := present[id]; ok {
			c.selected[id] = struct{}{}
		}
	}
}

// Deselect removes ids from the selection.
func (c *Controller) Deselect(ids ...int) {
	for _, id := range ids {
		delete(c.selected, id)
	}
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.selected = make(map[int]struct{})
}

// Selected returns the selected ids in ascending order.
func (c *Controller) Selected() []int {
	ids := make([]int, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// DeleteSelected removes the selected rows from the scratch buffer and
// returns how many were removed.
func (c *Controller) DeleteSelected() (int, error) {
	if !c.editing {
		return 0, c.noop(0, "", "not in edit mode")
	}
	kept := c.scratch[:0:0]
	for _, r := range c.scratch {
		if _, ok := c.selected[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	removed := len(c.scratch) - len(kept)
	c.scratch = kept
	c.ClearSelection()
	return removed, nil
}

func (c *Controller) idSet() map[int]struct{} {
	set := make(map[int]struct{}, len(c.working()))
	for _, r := range c.working() {
		set[r.ID] = struct{}{}
	}
	return set
}

// pruneSelection drops selected ids no longer in the working set.
func (c *Controller) pruneSelection() {
	present := c.idSet()
	for id := range c.selected {
		if _, ok := present[id]; !ok {
			delete(c.selected, id)
		}
	}
}
