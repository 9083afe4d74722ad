// Package inventory holds the application's collections and the operations
// on stands, materials, people, checklists and reports.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/erazemk/stojala/internal/binding"
	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/model"
)

// Collection names.
const (
	CollMaterials    = "materials"
	CollStands       = "stands"
	CollReports      = "reports"
	CollResponsibles = "responsiblePersons"
	CollChecklist    = "checklistItems"
	CollTransactions = "transactions"
)

var (
	// ErrInvalid is returned for input that is missing required values.
	ErrInvalid = errors.New("invalid input")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = docstore.ErrNotFound

	// ErrConflict is returned when the current state does not allow an operation.
	ErrConflict = docstore.ErrConflict
)

// options lists how each collection is bound.
var options = map[string]binding.Options{
	CollMaterials: {
		Collection: CollMaterials,
		OrderField: "name",
	},
	CollStands: {
		Collection:    CollStands,
		OrderField:    "number",
		ModifiedField: "updatedAt",
	},
	CollReports: {
		Collection:      CollReports,
		OrderField:      "date",
		TimestampFields: []string{"date", "servicedAt"},
	},
	CollResponsibles: {
		Collection: CollResponsibles,
		OrderField: "name",
	},
	CollChecklist: {
		Collection: CollChecklist,
		OrderField: "order",
	},
	CollTransactions: {
		Collection:      CollTransactions,
		OrderField:      "date",
		TimestampFields: []string{"date"},
	},
}

// Options returns the binding options of a collection.
func Options(collection string) (binding.Options, bool) {
	opts, ok := options[collection]
	if !ok {
		return binding.Options{}, false
	}
	opts.TimestampFields = append([]string(nil), opts.TimestampFields...)
	return opts, true
}

// Collections returns every bound collection name.
func Collections() []string {
	return []string{CollMaterials, CollStands, CollReports, CollResponsibles, CollChecklist, CollTransactions}
}

// Uploader stores a file and returns a URL for it.
type Uploader interface {
	Upload(ctx context.Context, category, filename string, data []byte) (string, error)
}

// ImageProcessor normalizes an uploaded picture. It returns the encoded bytes.
type ImageProcessor func(r io.Reader) ([]byte, error)

// Catalog owns one live binding per collection.
type Catalog struct {
	store  *docstore.Handle
	blobs  Uploader
	images ImageProcessor
	now    func() time.Time

	Materials    *binding.Binding[model.Material]
	Stands       *binding.Binding[model.Stand]
	Reports      *binding.Binding[model.Report]
	Responsibles *binding.Binding[model.Responsible]
	Checklist    *binding.Binding[model.ChecklistItem]
	Transactions *binding.Binding[model.Transaction]
}

// NewCatalog creates the bindings. Nothing is read until Start.
func NewCatalog(store *docstore.Handle, blobs Uploader, images ImageProcessor) *Catalog {
	c := &Catalog{
		store:  store,
		blobs:  blobs,
		images: images,
		now:    time.Now,
	}
	c.init()
	return c
}

func (c *Catalog) init() {
	c.Materials = binding.New[model.Material](c.store, mustOptions(CollMaterials))
	c.Stands = binding.New[model.Stand](c.store, mustOptions(CollStands))
	c.Reports = binding.New[model.Report](c.store, mustOptions(CollReports))
	c.Responsibles = binding.New[model.Responsible](c.store, mustOptions(CollResponsibles))
	c.Checklist = binding.New[model.ChecklistItem](c.store, mustOptions(CollChecklist))
	c.Transactions = binding.New[model.Transaction](c.store, mustOptions(CollTransactions))
}

func mustOptions(collection string) binding.Options {
	opts, ok := Options(collection)
	if !ok {
		panic("inventory: unknown collection " + collection)
	}
	return opts
}

type starter interface {
	Start(ctx context.Context) error
	Close()
}

func (c *Catalog) bindings() []starter {
	return []starter{c.Materials, c.Stands, c.Reports, c.Responsibles, c.Checklist, c.Transactions}
}

// Start opens every subscription. With no store configured it returns
// docstore.ErrNotConfigured and every binding reports that error.
func (c *Catalog) Start(ctx context.Context) error {
	var first error
	for _, b := range c.bindings() {
		if err := b.Start(ctx); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return fmt.Errorf("starting catalog: %w", first)
	}
	return nil
}

// Close tears down every subscription.
func (c *Catalog) Close() {
	for _, b := range c.bindings() {
		b.Close()
	}
}

// Restart closes the subscriptions and opens them against the current store
// client. It is used after the store configuration changes.
func (c *Catalog) Restart(ctx context.Context) error {
	c.Close()
	return c.Start(ctx)
}

// Wait blocks until every binding has its first snapshot.
func (c *Catalog) Wait(ctx context.Context) error {
	waits := []func(context.Context) error{
		c.Materials.Wait, c.Stands.Wait, c.Reports.Wait,
		c.Responsibles.Wait, c.Checklist.Wait, c.Transactions.Wait,
	}
	for _, w := range waits {
		if err := w(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) client() (docstore.Client, error) {
	return c.store.Client()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
