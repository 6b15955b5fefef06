package model

import "errors"

var (
	ErrEmptyJobID     = errors.New("job id cannot be empty")
	ErrEmptyMessageID = errors.New("message id cannot be empty")
	ErrZeroCreditCost = errors.New("credit cost must be positive")
)

// EmailJob is a unit of email-processing work carried on the job queue.
// CreditCost is deducted from the owner's balance when the job completes.
type EmailJob struct {
	JobID      string `json:"job_id"`
	UserID     int64  `json:"user_id"`
	MessageID  string `json:"message_id"`
	Subject    string `json:"subject,omitempty"`
	CreditCost int64  `json:"credit_cost"`
}

func (j EmailJob) Validate() error {
	if j.JobID == "" {
		return ErrEmptyJobID
	}
	if j.MessageID == "" {
		return ErrEmptyMessageID
	}
	if j.CreditCost <= 0 {
		return ErrZeroCreditCost
	}
	return nil
}
