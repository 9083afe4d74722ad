package model

import "time"

// Transaction is a logged issue or receive event for a stand.
type Transaction struct {
	ID              string    `json:"id,omitempty"`
	Type            string    `json:"type"`
	StandID         string    `json:"standId"`
	StandNumber     string    `json:"standNumber"`
	ResponsibleID   string    `json:"responsibleId,omitempty"`
	ResponsibleName string    `json:"responsibleName"`
	ReportID        string    `json:"reportId,omitempty"`
	Date            time.Time `json:"date"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Transaction types.
const (
	TransactionIssue   = "issue"
	TransactionReceive = "receive"
)
