package natsadapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/account-service/internal/domain"
	pkglog "github.com/example/account-service/pkg/log"
)

type published struct {
	subject string
	data    []byte
}

func newTestPublisher(out chan<- published) *Publisher {
	return &Publisher{
		publish: func(subject string, data []byte) error {
			out <- published{subject: subject, data: data}
			return nil
		},
		sessionSubject: "account.session-changed",
		profileSubject: "account.profile-created",
		logger:         pkglog.Nop(),
		now:            func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func TestPublisherProfileCreated(t *testing.T) {
	out := make(chan published, 1)
	p := newTestPublisher(out)

	err := p.ProfileCreated(context.Background(), &domain.Profile{ID: "user-1", Username: "alice", Email: "alice@example.com", AuthProvider: "email"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := <-out
	if msg.subject != "account.profile-created" {
		t.Fatalf("unexpected subject: %s", msg.subject)
	}
	var body profileCreated
	_ = json.Unmarshal(msg.data, &body)
	if body.UserID != "user-1" || body.Username != "alice" {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestPublisherRunForwardsSessionChanges(t *testing.T) {
	out := make(chan published, 2)
	p := newTestPublisher(out)
	updates := make(chan domain.Session, 2)
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), updates)
		close(done)
	}()

	updates <- domain.Session{State: domain.StateAuthenticated, Identity: &domain.Identity{ID: "user-1", Email: "alice@example.com"}}
	updates <- domain.Session{State: domain.StateUnauthenticated}
	close(updates)
	<-done

	first := <-out
	var body sessionChanged
	_ = json.Unmarshal(first.data, &body)
	if first.subject != "account.session-changed" || body.State != "authenticated" || body.UserID != "user-1" || body.Email != "alice@example.com" {
		t.Fatalf("unexpected first message: %s %+v", first.subject, body)
	}
	second := <-out
	body = sessionChanged{}
	_ = json.Unmarshal(second.data, &body)
	if body.State != "unauthenticated" || body.UserID != "" {
		t.Fatalf("unexpected second message: %+v", body)
	}
}
