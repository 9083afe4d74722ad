package inventory

import (
	"context"
	"strings"

	"github.com/erazemk/stojala/internal/model"
)

// ResponsibleInput holds the editable fields of a responsible person.
type ResponsibleInput struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (in ResponsibleInput) normalize() (ResponsibleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Name == "" {
		in.Name = strings.TrimSpace(in.FirstName + " " + in.LastName)
	}
	if in.Name == "" {
		return in, invalid("name is required")
	}
	return in, nil
}

// CreateResponsible adds a responsible person.
func (c *Catalog) CreateResponsible(ctx context.Context, in ResponsibleInput) (string, error) {
	in, err := in.normalize()
	if err != nil {
		return "", err
	}
	return c.Responsibles.Add(ctx, model.Responsible{
		Name:      in.Name,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
}

// UpdateResponsible edits a responsible person. Existing reports keep the
// name they were created with.
func (c *Catalog) UpdateResponsible(ctx context.Context, id string, in ResponsibleInput) error {
	in, err := in.normalize()
	if err != nil {
		return err
	}
	return c.Responsibles.Update(ctx, id, map[string]any{
		"name":      in.Name,
		"firstName": in.FirstName,
		"lastName":  in.LastName,
	})
}

// DeleteResponsible removes a responsible person.
func (c *Catalog) DeleteResponsible(ctx context.Context, id string) error {
	return c.Responsibles.Delete(ctx, id)
}

// ChecklistInput holds the editable fields of a checklist question.
type ChecklistInput struct {
	Question string `json:"question"`
	Order    *int   `json:"order"`
}

// CreateChecklistItem adds a question. Without an explicit order it goes last.
func (c *Catalog) CreateChecklistItem(ctx context.Context, in ChecklistInput) (string, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return "", invalid("question is required")
	}
	order := 0
	if in.Order != nil {
		order = *in.Order
	} else {
		for _, item := range c.Checklist.Items() {
			if item.Order >= order {
				order = item.Order + 1
			}
		}
	}
	return c.Checklist.Add(ctx, model.ChecklistItem{Question: question, Order: order})
}

// UpdateChecklistItem edits a question. Existing reports keep the text they
// were answered with.
func (c *Catalog) UpdateChecklistItem(ctx context.Context, id string, in ChecklistInput) error {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return invalid("question is required")
	}
	fields := map[string]any{"question": question}
	if in.Order != nil {
		fields["order"] = *in.Order
	}
	return c.Checklist.Update(ctx, id, fields)
}

// DeleteChecklistItem removes a question.
func (c *Catalog) DeleteChecklistItem(ctx context.Context, id string) error {
	return c.Checklist.Delete(ctx, id)
}
