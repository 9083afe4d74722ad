package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/erazemk/stojala/internal/model"
)

// ReportInput is a checklist submission for a stand.
type ReportInput struct {
	StandID       string                  `json:"standId"`
	ResponsibleID string                  `json:"responsibleId"`
	Answers       []model.ChecklistAnswer `json:"answers"`
	Date          time.Time               `json:"date"`
}

// ServiceInput marks a report as serviced.
type ServiceInput struct {
	ServicedBy string `json:"servicedBy"`
	Notes      string `json:"notes"`
}

// CreateReport records a checklist submission. The stand number and the
// responsible's name are copied into the report as they are right now.
func (c *Catalog) CreateReport(ctx context.Context, in ReportInput) (string, error) {
	report, err := c.buildReport(ctx, in, "")
	if err != nil {
		return "", err
	}
	return c.Reports.Add(ctx, report)
}

// buildReport resolves the denormalized fields of a new report. A failed or
// empty lookup stores model.UnknownValue instead of failing the report.
// fallbackName is used when no responsible id is given.
func (c *Catalog) buildReport(ctx context.Context, in ReportInput, fallbackName string) (model.Report, error) {
	if strings.TrimSpace(in.StandID) == "" {
		return model.Report{}, invalid("standId is required")
	}
	if _, err := c.client(); err != nil {
		return model.Report{}, err
	}

	report := model.Report{
		StandID:       in.StandID,
		StandNumber:   model.UnknownValue,
		ResponsibleID: in.ResponsibleID,
		Date:          in.Date,
		Answers:       c.fillQuestions(in.Answers),
	}
	if report.Date.IsZero() {
		report.Date = c.now().UTC()
	}

	stand, ok, err := c.Stands.Get(ctx, in.StandID)
	switch {
	case err != nil:
		slog.Warn("reading stand for report", "stand", in.StandID, "error", err)
	case ok:
		report.StandNumber = stand.Number
	}

	switch {
	case in.ResponsibleID != "":
		report.ResponsibleName = model.UnknownValue
		person, ok, err := c.Responsibles.Get(ctx, in.ResponsibleID)
		switch {
		case err != nil:
			slog.Warn("reading responsible for report", "responsible", in.ResponsibleID, "error", err)
		case ok:
			report.ResponsibleName = person.DisplayName()
		}
	case fallbackName != "":
		report.ResponsibleName = fallbackName
	}

	return report, nil
}

// fillQuestions copies missing question text from the checklist cache.
func (c *Catalog) fillQuestions(answers []model.ChecklistAnswer) []model.ChecklistAnswer {
	out := make([]model.ChecklistAnswer, len(answers))
	copy(out, answers)
	for i, a := range out {
		if a.Question != "" || a.QuestionID == "" {
			continue
		}
		if item, ok := c.Checklist.Find(a.QuestionID); ok {
			out[i].Question = item.Question
		} else {
			out[i].Question = model.UnknownValue
		}
	}
	return out
}

// ServiceReport marks a report as serviced. Concurrent calls do not lock;
// the last write wins.
func (c *Catalog) ServiceReport(ctx context.Context, id string, in ServiceInput) error {
	by := strings.TrimSpace(in.ServicedBy)
	if by == "" {
		return invalid("servicedBy is required")
	}
	return c.Reports.Update(ctx, id, map[string]any{
		"isServiced":   true,
		"servicedBy":   by,
		"servicedAt":   c.now().UTC(),
		"serviceNotes": strings.TrimSpace(in.Notes),
	})
}

// DeleteReport removes a report.
func (c *Catalog) DeleteReport(ctx context.Context, id string) error {
	return c.Reports.Delete(ctx, id)
}
