// Package jobs hosts the background worker: deposit maturity runs, overdue
// loan scans and queued SMS delivery, scheduled per organization.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDepositsMature settles matured fixed deposits.
	TaskDepositsMature = "deposits:mature"
	// TaskLoansOverdue flags overdue instalments and opens default records.
	TaskLoansOverdue = "loans:overdue"
)

// OrgPayload scopes a batch task to one organization. An empty code fans the
// task out across every registered organization.
type OrgPayload struct {
	Org string `json:"org,omitempty"`
}

// NewDepositsMatureTask constructs the deposit maturity task.
func NewDepositsMatureTask(payload OrgPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepositsMature, data), nil
}

// NewLoansOverdueTask constructs the overdue scan task.
func NewLoansOverdueTask(payload OrgPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoansOverdue, data), nil
}
