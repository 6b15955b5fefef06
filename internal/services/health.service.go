package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Pinger is satisfied by the storage and cache adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	checks map[string]Pinger
}

func NewHealthService() *HealthService {
	return &HealthService{checks: make(map[string]Pinger)}
}

func (s *HealthService) AddCheck(name string, p Pinger) {
	s.checks[name] = p
}

// Get returns nil when every registered dependency answers a ping.
func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrapf(err, "health check %q failed", name)
		}
	}
	return nil
}
