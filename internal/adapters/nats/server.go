package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/account-service/internal/domain"
)

// ProfileReader is the read-only slice of the profile store served over NATS.
type ProfileReader interface {
	GetProfile(ctx context.Context, identityID string) (*domain.Profile, bool, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
}

// ProfileHandler answers profile lookups from other services.
type ProfileHandler struct {
	profiles  ProfileReader
	timeout   time.Duration
	respondFn func(msg *nats.Msg, resp profileResponse)
}

type profileRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type profileResponse struct {
	OK        bool            `json:"ok"`
	Profile   *domain.Profile `json:"profile,omitempty"`
	Available *bool           `json:"available,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func NewProfileHandler(profiles ProfileReader) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, timeout: 3 * time.Second, respondFn: respond}
}

func (h *ProfileHandler) Subscribe(conn *nats.Conn, getSubject, usernameSubject, queue string) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	if _, err := conn.QueueSubscribe(getSubject, queue, h.handleGet); err != nil {
		return err
	}
	_, err := conn.QueueSubscribe(usernameSubject, queue, h.handleUsername)
	return err
}

func (h *ProfileHandler) handleGet(msg *nats.Msg) {
	var req profileRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.UserID == "" {
		h.respondFn(msg, profileResponse{OK: false, Error: "invalid_payload"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	profile, found, err := h.profiles.GetProfile(ctx, req.UserID)
	switch {
	case err != nil:
		h.respondFn(msg, profileResponse{OK: false, Error: errorCode(err)})
	case !found:
		h.respondFn(msg, profileResponse{OK: false, Error: "not_found"})
	default:
		h.respondFn(msg, profileResponse{OK: true, Profile: profile})
	}
}

func (h *ProfileHandler) handleUsername(msg *nats.Msg) {
	var req profileRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Username == "" {
		h.respondFn(msg, profileResponse{OK: false, Error: "invalid_payload"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	available, err := h.profiles.IsUsernameAvailable(ctx, req.Username)
	if err != nil {
		h.respondFn(msg, profileResponse{OK: false, Error: errorCode(err)})
		return
	}
	h.respondFn(msg, profileResponse{OK: true, Available: &available})
}

func errorCode(err error) string {
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

func respond(msg *nats.Msg, resp profileResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
