package services

import (
	"context"
	"errors"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/repository"
	"github.com/inboxly/mail-assistant/pkg/logger"
	"github.com/inboxly/mail-assistant/pkg/secrets"
)

var (
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrGmailNotLinked  = errors.New("no gmail account linked")
	ErrEmptyGmailToken = errors.New("gmail token must not be empty")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)
	SetGmailToken(ctx context.Context, id int64, gmailAddress *string, sealedToken []byte) error
}

// UserService owns account lifecycle and the sealed Gmail credential. The
// refresh token is sealed before it touches storage and only opened on the
// way to the mail fetcher.
type UserService struct {
	users UserRepository
	audit AuditSink
	box   *secrets.Box
}

func NewUserService(users UserRepository, audit AuditSink, box *secrets.Box) *UserService {
	return &UserService{users: users, audit: audit, box: box}
}

func (s *UserService) Register(ctx context.Context, req *model.UserCreateRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &model.User{Email: req.Email})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ConnectGmail seals the refresh token and stores it alongside the address.
func (s *UserService) ConnectGmail(ctx context.Context, userID int64, gmailAddress string, refreshToken []byte) error {
	if len(refreshToken) == 0 {
		return ErrEmptyGmailToken
	}

	sealed, err := s.box.Seal(refreshToken)
	if err != nil {
		return err
	}

	if err := s.users.SetGmailToken(ctx, userID, &gmailAddress, sealed); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if _, err := s.audit.Create(ctx, &userID, model.AuditGmailConnected, map[string]string{
		"gmail_address": gmailAddress,
	}); err != nil {
		logger.Warn("failed to record audit event", "event_type", model.AuditGmailConnected, "error", err)
	}
	return nil
}

// DisconnectGmail drops both the address and the sealed token.
func (s *UserService) DisconnectGmail(ctx context.Context, userID int64) error {
	if err := s.users.SetGmailToken(ctx, userID, nil, nil); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if _, err := s.audit.Create(ctx, &userID, model.AuditGmailDisconnected, nil); err != nil {
		logger.Warn("failed to record audit event", "event_type", model.AuditGmailDisconnected, "error", err)
	}
	return nil
}

// GmailToken opens the stored token for the mail fetcher. Handlers never
// call this.
func (s *UserService) GmailToken(ctx context.Context, userID int64) ([]byte, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if len(user.GmailTokenSealed) == 0 {
		return nil, ErrGmailNotLinked
	}
	return s.box.Open(user.GmailTokenSealed)
}
