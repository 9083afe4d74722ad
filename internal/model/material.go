package model

import "time"

// Material is a literature/item type that can be placed on a shelf.
type Material struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
