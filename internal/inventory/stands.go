package inventory

import (
	"context"
	"strings"

	"github.com/erazemk/stojala/internal/model"
)

// QRPrefix starts the code printed on every stand.
const QRPrefix = "stand:"

// StandInput holds the editable stand fields.
type StandInput struct {
	Number string `json:"number"`
	Theme  string `json:"theme"`
}

// QRCode returns the code printed on the stand with the given number.
func QRCode(number string) string {
	return QRPrefix + number
}

// CreateStand adds a stand in the hall with empty shelves.
func (c *Catalog) CreateStand(ctx context.Context, in StandInput) (string, error) {
	number := strings.TrimSpace(in.Number)
	if number == "" {
		return "", invalid("number is required")
	}
	return c.Stands.Add(ctx, model.Stand{
		Number:  number,
		Theme:   strings.TrimSpace(in.Theme),
		Status:  model.StatusInHall,
		Shelves: model.NewShelves(model.DefaultShelfCount),
		QRCode:  QRCode(number),
	})
}

// UpdateStand changes number and theme. The QR code follows the number.
func (c *Catalog) UpdateStand(ctx context.Context, id string, in StandInput) error {
	number := strings.TrimSpace(in.Number)
	if number == "" {
		return invalid("number is required")
	}
	return c.Stands.Update(ctx, id, map[string]any{
		"number": number,
		"theme":  strings.TrimSpace(in.Theme),
		"qrCode": QRCode(number),
	})
}

// DeleteStand removes a stand. Its reports and transactions are kept.
func (c *Catalog) DeleteStand(ctx context.Context, id string) error {
	return c.Stands.Delete(ctx, id)
}

// SetShelf replaces the materials on one shelf. Index len(shelves) adds a
// new shelf at the end.
func (c *Catalog) SetShelf(ctx context.Context, standID string, index int, materialIDs []string) error {
	stand, ok, err := c.Stands.Get(ctx, standID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if index < 0 || index > len(stand.Shelves) {
		return invalid("shelf %d does not exist", index)
	}

	ids := make([]string, 0, len(materialIDs))
	seen := make(map[string]bool, len(materialIDs))
	for _, id := range materialIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	shelves := append([]model.Shelf(nil), stand.Shelves...)
	if index == len(shelves) {
		shelves = append(shelves, model.Shelf{ID: model.ShelfID(index)})
	}
	shelves[index].MaterialIDs = ids

	return c.Stands.Update(ctx, standID, map[string]any{"shelves": shelves})
}

// LookupStand finds a stand by id, QR code or number in the local cache.
func (c *Catalog) LookupStand(code string) (model.Stand, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Stand{}, false
	}
	number := strings.TrimPrefix(code, QRPrefix)
	for _, s := range c.Stands.Items() {
		if s.ID == code || s.QRCode == code || s.Number == number {
			return s, true
		}
	}
	return model.Stand{}, false
}

// ResolvedShelf is a shelf with its materials looked up.
type ResolvedShelf struct {
	ID        string           `json:"id"`
	Materials []model.Material `json:"materials"`
}

// ResolveShelves joins a stand's material references with the materials
// cache. Materials that no longer exist are reported with an unknown name.
func (c *Catalog) ResolveShelves(stand model.Stand) []ResolvedShelf {
	byID := make(map[string]model.Material)
	for _, m := range c.Materials.Items() {
		byID[m.ID] = m
	}

	out := make([]ResolvedShelf, 0, len(stand.Shelves))
	for _, shelf := range stand.Shelves {
		rs := ResolvedShelf{ID: shelf.ID, Materials: make([]model.Material, 0, len(shelf.MaterialIDs))}
		for _, id := range shelf.MaterialIDs {
			m, ok := byID[id]
			if !ok {
				m = model.Material{ID: id, Name: model.UnknownValue}
			}
			rs.Materials = append(rs.Materials, m)
		}
		out = append(out, rs)
	}
	return out
}
