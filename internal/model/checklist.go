package model

import "time"

// ChecklistItem is one yes/no question asked when a stand is received.
type ChecklistItem struct {
	ID        string    `json:"id,omitempty"`
	Question  string    `json:"question"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}
