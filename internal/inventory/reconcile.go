package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/metrics"
	"github.com/erazemk/stojala/internal/model"
)

// Reconciler finishes stand receipts that were interrupted between writes.
type Reconciler struct {
	catalog *Catalog
	// after is the minimum age of a pending report before it is touched, so
	// receipts still in progress are left alone.
	after time.Duration
}

// NewReconciler returns a reconciler for catalog.
func NewReconciler(catalog *Catalog, after time.Duration) *Reconciler {
	return &Reconciler{catalog: catalog, after: after}
}

// Sweep looks at every pending report. If its stand is back in the hall the
// receipt is completed; otherwise the stand was never received and the
// report is removed. It returns the number of reports handled.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	client, err := r.catalog.client()
	if err != nil {
		return 0, err
	}

	docs, err := client.Query(ctx, CollReports, docstore.Query{
		Where: []docstore.Filter{{Field: "pending", Value: true}},
	})
	if err != nil {
		return 0, fmt.Errorf("listing pending reports: %w", err)
	}

	cutoff := r.catalog.now().Add(-r.after)
	handled := 0
	var errs []error
	for _, doc := range docs {
		report, err := r.catalog.Reports.Decode(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("decoding report %s: %w", doc.ID, err))
			continue
		}
		if report.CreatedAt.After(cutoff) {
			continue
		}
		if err := r.reconcile(ctx, client, report); err != nil {
			errs = append(errs, err)
			continue
		}
		handled++
	}

	metrics.AddReconciled(handled)
	if handled > 0 {
		slog.Info("pending reports reconciled", "count", handled)
	}
	return handled, errors.Join(errs...)
}

func (r *Reconciler) reconcile(ctx context.Context, client docstore.Client, report model.Report) error {
	stand, ok, err := r.catalog.Stands.Get(ctx, report.StandID)
	if err != nil {
		return err
	}

	if !ok || !stand.InHall() {
		if err := client.Delete(ctx, CollReports, report.ID); err != nil {
			return fmt.Errorf("removing orphaned report %s: %w", report.ID, err)
		}
		slog.Warn("removed orphaned report", "report", report.ID, "stand", report.StandID)
		return nil
	}

	txData, err := r.catalog.Transactions.Encode(receiptFor(report.ID, report))
	if err != nil {
		return err
	}
	if err := r.catalog.completeReceipt(ctx, client, report.ID, txData); err != nil {
		return fmt.Errorf("completing report %s: %w", report.ID, err)
	}
	return nil
}

// Schedule runs Sweep on spec (a cron expression such as "@every 1m") until
// the returned scheduler is stopped.
func (r *Reconciler) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, docstore.ErrNotConfigured) {
			slog.Error("reconciling reports", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling reconciler: %w", err)
	}
	c.Start()
	return c, nil
}
