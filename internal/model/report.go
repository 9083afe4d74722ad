package model

import "time"

// Report is a checklist submission recorded when a stand is received.
//
// StandNumber, ResponsibleName and each answer's Question are snapshots taken
// at creation time; later edits to the referenced records do not change them.
type Report struct {
	ID              string            `json:"id,omitempty"`
	StandID         string            `json:"standId"`
	StandNumber     string            `json:"standNumber"`
	ResponsibleID   string            `json:"responsibleId,omitempty"`
	ResponsibleName string            `json:"responsibleName,omitempty"`
	Date            time.Time         `json:"date"`
	Answers         []ChecklistAnswer `json:"answers"`
	IsServiced      bool              `json:"isServiced"`
	ServicedBy      string            `json:"servicedBy,omitempty"`
	ServicedAt      *time.Time        `json:"servicedAt,omitempty"`
	ServiceNotes    string            `json:"serviceNotes,omitempty"`
	Pending         bool              `json:"pending,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// ChecklistAnswer is the answer to one checklist question.
type ChecklistAnswer struct {
	QuestionID string `json:"questionId"`
	Question   string `json:"question"`
	Answer     bool   `json:"answer"`
	Notes      string `json:"notes,omitempty"`
}

// UnknownValue is written in place of denormalized fields whose source record
// could not be read.
const UnknownValue = "Unknown"

// HasIssues reports whether any checklist answer was negative.
func (r Report) HasIssues() bool {
	for _, a := range r.Answers {
		if !a.Answer {
			return true
		}
	}
	return false
}
