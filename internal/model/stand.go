package model

import (
	"strconv"
	"time"
)

// Stand is a physical display rack tracked as an inventory unit.
type Stand struct {
	ID        string    `json:"id,omitempty"`
	Number    string    `json:"number"`
	Theme     string    `json:"theme,omitempty"`
	Status    string    `json:"status"`
	Shelves   []Shelf   `json:"shelves"`
	QRCode    string    `json:"qrCode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Shelf is a slot on a stand. Materials are referenced by id and resolved
// against the materials collection when displayed.
type Shelf struct {
	ID          string   `json:"id"`
	MaterialIDs []string `json:"materialIds"`
}

// StatusInHall marks a stand that is not issued to anybody. Any other status
// value is the name of the person holding the stand.
const StatusInHall = "in hall"

// DefaultShelfCount is the number of shelves a new stand gets.
const DefaultShelfCount = 3

// InHall reports whether the stand is currently in the hall.
func (s Stand) InHall() bool {
	return s.Status == "" || s.Status == StatusInHall
}

// NewShelves returns n empty shelves with stable ids.
func NewShelves(n int) []Shelf {
	shelves := make([]Shelf, n)
	for i := range shelves {
		shelves[i] = Shelf{ID: ShelfID(i), MaterialIDs: []string{}}
	}
	return shelves
}

// ShelfID returns the id of the shelf at index i.
func ShelfID(i int) string {
	return "shelf-" + strconv.Itoa(i+1)
}
