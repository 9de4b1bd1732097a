package natsadapter

import (
	"context"
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/account-service/internal/domain"
	pkglog "github.com/example/account-service/pkg/log"
)

type publishFunc func(subject string, data []byte) error

// Publisher fans session changes and new profiles out to NATS subjects.
type Publisher struct {
	publish        publishFunc
	sessionSubject string
	profileSubject string
	logger         pkglog.Logger
	now            func() time.Time
}

type sessionChanged struct {
	State  string    `json:"state"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	At     time.Time `json:"at"`
}

type profileCreated struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	AuthProvider string `json:"auth_provider"`
}

func NewPublisher(conn *nats.Conn, sessionSubject, profileSubject string, logger pkglog.Logger) *Publisher {
	return &Publisher{
		publish:        conn.Publish,
		sessionSubject: sessionSubject,
		profileSubject: profileSubject,
		logger:         logger,
		now:            time.Now,
	}
}

// ProfileCreated announces a freshly provisioned profile.
func (p *Publisher) ProfileCreated(_ context.Context, profile *domain.Profile) error {
	return p.send(p.profileSubject, profileCreated{
		UserID:       profile.ID,
		Username:     profile.Username,
		Email:        profile.Email,
		AuthProvider: profile.AuthProvider,
	})
}

// Run publishes every session from updates until the channel closes or ctx ends.
func (p *Publisher) Run(ctx context.Context, updates <-chan domain.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			msg := sessionChanged{State: s.State.String(), UserID: s.UserID(), At: p.now()}
			if s.Identity != nil {
				msg.Email = s.Identity.Email
			}
			if err := p.send(p.sessionSubject, msg); err != nil {
				p.logger.Warn().Err(err).Str("subject", p.sessionSubject).Msg("publish session change failed")
			}
		}
	}
}

func (p *Publisher) send(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(subject, data)
}
