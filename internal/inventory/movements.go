package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/model"
)

// ReceiptPrefix starts the id of the transaction logged for a received
// stand; the rest is the report id.
const ReceiptPrefix = "rcv-"

// ReceiptID returns the transaction id logged for report reportID.
func ReceiptID(reportID string) string {
	return ReceiptPrefix + reportID
}

// IssueInput hands a stand to a responsible person.
type IssueInput struct {
	ResponsibleID string `json:"responsibleId"`
}

// ReceiveInput returns a stand to the hall with a checklist report.
type ReceiveInput struct {
	ResponsibleID string                  `json:"responsibleId"`
	Answers       []model.ChecklistAnswer `json:"answers"`
}

// IssueStand sets the stand's status to the responsible's name and logs an
// issue transaction. It returns the transaction id.
func (c *Catalog) IssueStand(ctx context.Context, standID string, in IssueInput) (string, error) {
	if strings.TrimSpace(in.ResponsibleID) == "" {
		return "", invalid("responsibleId is required")
	}
	client, err := c.client()
	if err != nil {
		return "", err
	}

	stand, ok, err := c.Stands.Get(ctx, standID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("stand %s: %w", standID, ErrNotFound)
	}
	if !stand.InHall() {
		return "", fmt.Errorf("%w: stand %s is already issued to %s", ErrConflict, stand.Number, stand.Status)
	}

	person, ok, err := c.Responsibles.Get(ctx, in.ResponsibleID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("responsible %s: %w", in.ResponsibleID, ErrNotFound)
	}
	name := person.DisplayName()

	now := c.now().UTC()
	txID := docstore.NewID()
	tx := model.Transaction{
		Type:            model.TransactionIssue,
		StandID:         stand.ID,
		StandNumber:     stand.Number,
		ResponsibleID:   person.ID,
		ResponsibleName: name,
		Date:            now,
	}
	txData, err := c.Transactions.Encode(tx)
	if err != nil {
		return "", err
	}
	standPatch := c.Stands.Patch(map[string]any{"status": name})

	if batcher, ok := client.(docstore.Batcher); ok {
		err := batcher.Batch(ctx, []docstore.Op{
			{Kind: docstore.OpUpdate, Collection: CollStands, ID: stand.ID, Data: standPatch, If: statusIs(stand)},
			{Kind: docstore.OpSet, Collection: CollTransactions, ID: txID, Data: txData},
		})
		if errors.Is(err, docstore.ErrConflict) {
			return "", fmt.Errorf("%w: stand %s changed while it was being issued", ErrConflict, stand.Number)
		}
		if err != nil {
			return "", fmt.Errorf("issuing stand: %w", err)
		}
		slog.Info("stand issued", "stand", stand.Number, "responsible", name)
		return txID, nil
	}

	if err := client.Update(ctx, CollStands, stand.ID, standPatch); err != nil {
		return "", fmt.Errorf("issuing stand: %w", err)
	}
	if err := client.Set(ctx, CollTransactions, txID, txData); err != nil {
		// Put the stand back so status and log agree.
		revert := c.Stands.Patch(map[string]any{"status": stand.Status})
		if rerr := client.Update(ctx, CollStands, stand.ID, revert); rerr != nil {
			slog.Error("reverting stand status", "stand", stand.Number, "error", rerr)
		}
		return "", fmt.Errorf("logging issue: %w", err)
	}
	slog.Info("stand issued", "stand", stand.Number, "responsible", name)
	return txID, nil
}

// ReceiveStand records the checklist report, returns the stand to the hall
// and logs a receive transaction. It returns the report id.
//
// When the store cannot batch writes, the report is first written as
// pending and committed last; Reconciler.Sweep completes receipts that were
// interrupted part way.
func (c *Catalog) ReceiveStand(ctx context.Context, standID string, in ReceiveInput) (string, error) {
	client, err := c.client()
	if err != nil {
		return "", err
	}

	stand, ok, err := c.Stands.Get(ctx, standID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("stand %s: %w", standID, ErrNotFound)
	}
	if stand.InHall() {
		return "", fmt.Errorf("%w: stand %s is already in the hall", ErrConflict, stand.Number)
	}

	report, err := c.buildReport(ctx, ReportInput{
		StandID:       standID,
		ResponsibleID: in.ResponsibleID,
		Answers:       in.Answers,
	}, stand.Status)
	if err != nil {
		return "", err
	}

	reportID := docstore.NewID()
	tx := receiptFor(reportID, report)
	txData, err := c.Transactions.Encode(tx)
	if err != nil {
		return "", err
	}
	standPatch := c.Stands.Patch(map[string]any{"status": model.StatusInHall})

	if batcher, ok := client.(docstore.Batcher); ok {
		reportData, err := c.Reports.Encode(report)
		if err != nil {
			return "", err
		}
		err = batcher.Batch(ctx, []docstore.Op{
			{Kind: docstore.OpSet, Collection: CollReports, ID: reportID, Data: reportData},
			{Kind: docstore.OpUpdate, Collection: CollStands, ID: standID, Data: standPatch, If: statusIs(stand)},
			{Kind: docstore.OpSet, Collection: CollTransactions, ID: ReceiptID(reportID), Data: txData},
		})
		if errors.Is(err, docstore.ErrConflict) {
			return "", fmt.Errorf("%w: stand %s changed while it was being received", ErrConflict, stand.Number)
		}
		if err != nil {
			return "", fmt.Errorf("receiving stand: %w", err)
		}
		slog.Info("stand received", "stand", stand.Number, "report", reportID)
		return reportID, nil
	}

	report.Pending = true
	if err := c.Reports.Put(ctx, reportID, report); err != nil {
		return "", fmt.Errorf("receiving stand: %w", err)
	}

	if err := client.Update(ctx, CollStands, standID, standPatch); err != nil {
		if derr := client.Delete(ctx, CollReports, reportID); derr != nil {
			slog.Error("removing pending report", "report", reportID, "error", derr)
		}
		return "", fmt.Errorf("receiving stand: %w", err)
	}

	if err := c.completeReceipt(ctx, client, reportID, txData); err != nil {
		// The stand is back in the hall; the sweep finishes the rest.
		slog.Warn("receipt left pending", "stand", stand.Number, "report", reportID, "error", err)
	}
	slog.Info("stand received", "stand", stand.Number, "report", reportID)
	return reportID, nil
}

// completeReceipt logs the receive transaction and commits the report. Both
// writes are idempotent.
func (c *Catalog) completeReceipt(ctx context.Context, client docstore.Client, reportID string, txData map[string]any) error {
	if err := client.Set(ctx, CollTransactions, ReceiptID(reportID), txData); err != nil {
		return fmt.Errorf("logging receipt: %w", err)
	}
	if err := client.Update(ctx, CollReports, reportID, map[string]any{"pending": false}); err != nil {
		return fmt.Errorf("committing report: %w", err)
	}
	return nil
}

// statusIs conditions a batched stand write on the status that was read.
// A stand without a status cannot be told apart from one with an empty
// status, so it is written unconditionally.
func statusIs(stand model.Stand) []docstore.Filter {
	if stand.Status == "" {
		return nil
	}
	return []docstore.Filter{{Field: "status", Value: stand.Status}}
}

func receiptFor(reportID string, r model.Report) model.Transaction {
	return model.Transaction{
		Type:            model.TransactionReceive,
		StandID:         r.StandID,
		StandNumber:     r.StandNumber,
		ResponsibleID:   r.ResponsibleID,
		ResponsibleName: r.ResponsibleName,
		ReportID:        reportID,
		Date:            r.Date,
	}
}
