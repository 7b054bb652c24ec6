package domain

import "time"

// SubmissionStatus lifecycle of an order submission.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission record of one bundle handed to the execution client.
type Submission struct {
	ID         string           `json:"id"`
	Status     SubmissionStatus `json:"status"`
	Intent     OrderIntent      `json:"intent"`
	Allocation SplitAllocation  `json:"allocation"`
	Calls      []CallSummary    `json:"calls"`
	OpHash     string           `json:"op_hash,omitempty"`
	Error      string           `json:"error,omitempty"`
	Time       time.Time        `json:"time"`
}
