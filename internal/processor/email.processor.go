package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/queue"
	"github.com/inboxly/mail-assistant/internal/services"
	"github.com/inboxly/mail-assistant/pkg/logger"
	"github.com/inboxly/mail-assistant/pkg/prom"
)

// UsageCharger is the slice of the billing orchestrator the job processor
// needs.
type UsageCharger interface {
	DeductUsage(ctx context.Context, userID int64, amount int64, description string) (*model.Transaction, error)
}

type AuditRecorder interface {
	Create(ctx context.Context, userID *int64, eventType string, metadata map[string]string) (*model.AuditEvent, error)
}

// EmailJobProcessor charges credits for queued email work. Redis-side
// idempotency keeps a redelivered job from being charged twice; the ledger's
// own reference checks are a second line of defense, not the first.
type EmailJobProcessor struct {
	billing     UsageCharger
	audit       AuditRecorder
	idempotency *IdempotencyService
}

func NewEmailJobProcessor(billing UsageCharger, audit AuditRecorder, idempotency *IdempotencyService) *EmailJobProcessor {
	return &EmailJobProcessor{
		billing:     billing,
		audit:       audit,
		idempotency: idempotency,
	}
}

func (p *EmailJobProcessor) GetType() string {
	return "email_job"
}

func (p *EmailJobProcessor) Process(ctx context.Context, d *queue.Delivery) error {
	start := time.Now()

	var job model.EmailJob
	if err := json.Unmarshal(d.Data, &job); err != nil {
		logger.Error("failed to unmarshal email job", "delivery_id", d.ID, "error", err)
		prom.IncJobProcessed("malformed")
		// a malformed payload will never parse on retry
		return nil
	}
	if err := job.Validate(); err != nil {
		logger.Error("invalid email job", "job_id", job.JobID, "error", err)
		prom.IncJobProcessed("invalid")
		return nil
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, job.JobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			logger.Info("email job already processed, skipping", "job_id", job.JobID)
			return nil
		case errors.Is(err, ErrMaxRetriesExceeded):
			logger.Error("email job exhausted retries", "job_id", job.JobID)
			prom.IncJobProcessed("exhausted")
			return nil
		case errors.Is(err, ErrLockAcquireFailed):
			return fmt.Errorf("job %s locked by another consumer", job.JobID)
		default:
			return err
		}
	}
	defer func() {
		if procCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	logger.Info("processing email job",
		"job_id", job.JobID,
		"user_id", job.UserID,
		"message_id", job.MessageID,
		"credit_cost", job.CreditCost,
		"is_retry", procCtx.IsRetry)

	txn, err := p.billing.DeductUsage(ctx, job.UserID, job.CreditCost,
		fmt.Sprintf("email summary for message %s", job.MessageID))
	if err != nil {
		var insufficient *services.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			// no amount of retrying buys the user more credits
			logger.Warn("email job dropped, insufficient credits",
				"job_id", job.JobID,
				"user_id", job.UserID,
				"required", insufficient.Required,
				"available", insufficient.Available)
			prom.IncJobProcessed("insufficient_credits")
			if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
				logger.Error("failed to mark job terminal", "job_id", job.JobID, "error", markErr)
			}
			return nil
		}

		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("failed to mark failure", "job_id", job.JobID, "error", markErr)
		}
		prom.IncJobProcessed("failed")
		return err
	}

	if _, err := p.audit.Create(ctx, &job.UserID, model.AuditEmailJobProcessed, map[string]string{
		"job_id":         job.JobID,
		"message_id":     job.MessageID,
		"transaction_id": strconv.FormatInt(txn.ID, 10),
		"credits":        strconv.FormatInt(job.CreditCost, 10),
	}); err != nil {
		logger.Warn("failed to record audit event", "job_id", job.JobID, "error", err)
	}

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("failed to mark success", "job_id", job.JobID, "error", markErr)
	}

	prom.IncJobProcessed("processed")
	prom.AddJobProcessingDuration(time.Since(start).Seconds())

	logger.Info("email job processed",
		"job_id", job.JobID,
		"user_id", job.UserID,
		"balance_after", txn.BalanceAfter)
	return nil
}
