package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"

	"github.com/inboxly/mail-assistant/internal/model"
	xhttp "github.com/inboxly/mail-assistant/pkg/http"
)

type JobQueue interface {
	PublishJSON(ctx context.Context, v interface{}, metadata map[string]string) (string, error)
}

// JobHandler enqueues email work for the background processor.
type JobHandler struct {
	queue JobQueue
}

func NewJobHandler(q JobQueue) *JobHandler {
	return &JobHandler{queue: q}
}

func RegisterJobRoutes(e *router.Group, h *JobHandler) {
	e.POST("/jobs/email", h.EnqueueEmailJob)
}

type enqueueEmailJobRequest struct {
	UserID     int64  `json:"user_id"`
	MessageID  string `json:"message_id"`
	Subject    string `json:"subject"`
	CreditCost int64  `json:"credit_cost"`
}

func (h *JobHandler) EnqueueEmailJob(ctx *xhttp.RequestCtx) {
	var req enqueueEmailJobRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	job := model.EmailJob{
		JobID:      uuid.NewString(),
		UserID:     req.UserID,
		MessageID:  req.MessageID,
		Subject:    req.Subject,
		CreditCost: req.CreditCost,
	}
	if err := job.Validate(); err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	if _, err := h.queue.PublishJSON(ctx, job, map[string]string{"type": "email_job"}); err != nil {
		writeError(ctx, 500, "failed to enqueue job")
		return
	}
	writeJSON(ctx, 202, map[string]string{"job_id": job.JobID})
}
