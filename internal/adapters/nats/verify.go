package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/account-service/internal/tokenverify"
)

// TokenHandler lets other services check an access token issued by the
// hosted auth service and learn whose it is.
type TokenHandler struct {
	parser    tokenverify.Parser
	profiles  ProfileReader
	now       func() time.Time
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	OK          bool           `json:"ok"`
	UserID      string         `json:"user_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	Username    string         `json:"username,omitempty"`
	Role        string         `json:"role,omitempty"`
	AAL         string         `json:"aal,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewTokenHandler builds the responder. profiles may be nil, in which case
// responses carry no username.
func NewTokenHandler(parser tokenverify.Parser, profiles ProfileReader) *TokenHandler {
	return &TokenHandler{parser: parser, profiles: profiles, now: time.Now, respondFn: respondVerify}
}

func (h *TokenHandler) Subscribe(conn *nats.Conn, subject, queue string) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	_, err := conn.QueueSubscribe(subject, queue, h.handle)
	return err
}

func (h *TokenHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Token == "" {
		h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_payload"})
		return
	}
	// A decode-only parser would vouch for forged tokens.
	if !tokenverify.VerifiesSignature(h.parser) {
		h.respondFn(msg, verifyResponse{OK: false, Error: "verification_unavailable"})
		return
	}
	result, err := tokenverify.Verify(h.parser, req.Token, h.now)
	switch {
	case errors.Is(err, tokenverify.ErrTokenExpired):
		h.respondFn(msg, verifyResponse{OK: false, Error: "expired"})
		return
	case errors.Is(err, tokenverify.ErrSubjectMissing):
		h.respondFn(msg, verifyResponse{OK: false, Error: "subject_missing"})
		return
	case err != nil:
		h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_token"})
		return
	}

	resp := verifyResponse{
		OK:          true,
		UserID:      result.UserID,
		Email:       result.Email,
		Role:        result.Role,
		AAL:         result.AAL,
		SessionID:   result.SessionID,
		ExpiresAt:   &result.ExpiresAt,
		AppMetadata: result.AppMetadata,
	}
	if h.profiles != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if profile, found, err := h.profiles.GetProfile(ctx, result.UserID); err == nil && found {
			resp.Username = profile.Username
		}
	}
	h.respondFn(msg, resp)
}

func respondVerify(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
