package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/services"
	xhttp "github.com/inboxly/mail-assistant/pkg/http"
)

type UserService interface {
	Register(ctx context.Context, req *model.UserCreateRequest) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	ConnectGmail(ctx context.Context, userID int64, gmailAddress string, refreshToken []byte) error
	DisconnectGmail(ctx context.Context, userID int64) error
}

type UserHandler struct {
	svc UserService
}

func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

func RegisterUserRoutes(e *router.Group, h *UserHandler) {
	e.POST("/users", h.Register)
	e.GET("/users/{user_id}", h.Get)
	e.POST("/users/{user_id}/gmail", h.ConnectGmail)
	e.DELETE("/users/{user_id}/gmail", h.DisconnectGmail)
}

type connectGmailRequest struct {
	GmailAddress string `json:"gmail_address"`
	RefreshToken string `json:"refresh_token"`
}

func (h *UserHandler) Register(ctx *xhttp.RequestCtx) {
	var req model.UserCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	user, err := h.svc.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			writeError(ctx, 409, "email already registered")
			return
		}
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, user)
}

func (h *UserHandler) Get(ctx *xhttp.RequestCtx) {
	userID, err := pathInt64(ctx, "user_id")
	if err != nil {
		writeError(ctx, 400, "invalid user id")
		return
	}

	user, err := h.svc.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(ctx, 404, "user not found")
			return
		}
		writeError(ctx, 500, "internal error")
		return
	}
	writeJSON(ctx, 200, user)
}

func (h *UserHandler) ConnectGmail(ctx *xhttp.RequestCtx) {
	userID, err := pathInt64(ctx, "user_id")
	if err != nil {
		writeError(ctx, 400, "invalid user id")
		return
	}

	var req connectGmailRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.GmailAddress == "" {
		writeError(ctx, 400, "gmail_address is required")
		return
	}

	if err := h.svc.ConnectGmail(ctx, userID, req.GmailAddress, []byte(req.RefreshToken)); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeError(ctx, 404, "user not found")
		case errors.Is(err, services.ErrEmptyGmailToken):
			writeError(ctx, 400, err.Error())
		default:
			writeError(ctx, 500, "internal error")
		}
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *UserHandler) DisconnectGmail(ctx *xhttp.RequestCtx) {
	userID, err := pathInt64(ctx, "user_id")
	if err != nil {
		writeError(ctx, 400, "invalid user id")
		return
	}

	if err := h.svc.DisconnectGmail(ctx, userID); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(ctx, 404, "user not found")
			return
		}
		writeError(ctx, 500, "internal error")
		return
	}
	ctx.Response.SetStatusCode(204)
}
