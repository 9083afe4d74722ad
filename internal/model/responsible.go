package model

import (
	"strings"
	"time"
)

// Responsible is a person accountable for issuing, receiving or servicing a stand.
type Responsible struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName returns Name if set, otherwise "FirstName LastName".
func (r Responsible) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}
