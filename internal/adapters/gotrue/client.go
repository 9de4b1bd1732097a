package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/example/account-service/internal/domain"
	"github.com/example/account-service/internal/tokenverify"
	pkglog "github.com/example/account-service/pkg/log"
)

type Options struct {
	BaseURL       string
	AnonKey       string
	Timeout       time.Duration
	RefreshMargin time.Duration
	Parser        tokenverify.Parser
	// Store keeps the token pair across restarts. Nil disables persistence.
	Store TokenStore
}

// Client talks to a GoTrue compatible auth API and keeps the token pair of
// the one session this process holds.
type Client struct {
	baseURL       string
	anonKey       string
	http          *http.Client
	parser        tokenverify.Parser
	refreshMargin time.Duration
	tokenStore    TokenStore
	logger        pkglog.Logger
	now           func() time.Time

	// mu guards the session and is held while its change event goes out, so
	// subscribers see changes in the order they happened.
	mu       sync.Mutex
	tokens   *domain.Tokens
	identity *domain.Identity
	timer    *time.Timer
	restored bool

	subsMu  sync.Mutex
	subs    map[int]chan domain.SessionEvent
	nextSub int
}

func NewClient(opts Options, logger pkglog.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Parser == nil {
		opts.Parser = tokenverify.NewParser("")
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/") + "/auth/v1",
		anonKey:       opts.AnonKey,
		http:          &http.Client{Timeout: opts.Timeout},
		parser:        opts.Parser,
		refreshMargin: opts.RefreshMargin,
		tokenStore:    opts.Store,
		logger:        logger,
		now:           time.Now,
		subs:          map[int]chan domain.SessionEvent{},
	}
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u *userResponse) identity() *domain.Identity {
	provider, _ := u.AppMetadata["provider"].(string)
	if provider == "" {
		provider = domain.ProviderEmail
	}
	return &domain.Identity{
		ID:        u.ID,
		Email:     u.Email,
		Provider:  provider,
		Metadata:  u.UserMetadata,
		CreatedAt: u.CreatedAt,
	}
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

func (s *sessionResponse) tokens(now time.Time) domain.Tokens {
	expires := now.Add(time.Duration(s.ExpiresIn) * time.Second)
	if s.ExpiresAt > 0 {
		expires = time.Unix(s.ExpiresAt, 0)
	}
	return domain.Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresAt: expires}
}

// CurrentSession returns the identity of the session held by this client, or
// nil. The first call brings back a session persisted by an earlier process
// by exchanging its refresh token.
func (c *Client) CurrentSession(ctx context.Context) (*domain.Identity, error) {
	c.mu.Lock()
	if c.restored || c.identity != nil || c.tokenStore == nil {
		c.restored = true
		defer c.mu.Unlock()
		return domain.CopyIdentity(c.identity), nil
	}
	c.restored = true
	c.mu.Unlock()
	return c.restore(ctx)
}

func (c *Client) restore(ctx context.Context) (*domain.Identity, error) {
	saved, err := c.tokenStore.Load()
	if err != nil {
		c.logger.Warn().Err(err).Msg("stored session unreadable")
		return nil, nil
	}
	if saved == nil || saved.RefreshToken == "" {
		return nil, nil
	}

	var resp sessionResponse
	query := url.Values{"grant_type": {"refresh_token"}}
	err = c.do(ctx, http.MethodPost, "/token", query, c.anonKey, map[string]string{"refresh_token": saved.RefreshToken}, &resp)
	if err != nil {
		if rejected(err) {
			c.logger.Info().Err(err).Msg("stored session no longer valid")
			if err := c.tokenStore.Clear(); err != nil {
				c.logger.Warn().Err(err).Msg("clear stored session failed")
			}
			return nil, nil
		}
		c.logger.Warn().Err(err).Msg("stored session not restored")
		return nil, nil
	}
	if resp.User == nil || resp.AccessToken == "" {
		return nil, nil
	}
	identity := resp.User.identity()
	c.commit(resp.tokens(c.now()), identity, domain.EventInitialSession)
	c.logger.Info().Str("user_id", identity.ID).Msg("session restored")
	return domain.CopyIdentity(identity), nil
}

// SignUp creates the identity. It never adopts the session the service may
// return; the user signs in explicitly afterwards.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error) {
	payload := map[string]interface{}{"email": email, "password": password, "data": metadata}
	var resp struct {
		userResponse
		User *userResponse `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/signup", nil, c.anonKey, payload, &resp); err != nil {
		return nil, err
	}
	if resp.User != nil {
		return resp.User.identity(), nil
	}
	if resp.ID == "" {
		return nil, domain.AuthServiceError(http.StatusBadGateway, "", "sign up returned no user")
	}
	return resp.userResponse.identity(), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	var resp sessionResponse
	query := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, c.anonKey, map[string]string{"email": email, "password": password}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.AccessToken == "" {
		return nil, domain.AuthServiceError(http.StatusBadGateway, "", "sign in returned no session")
	}
	identity := resp.User.identity()
	c.commit(resp.tokens(c.now()), identity, domain.EventSignedIn)
	return domain.CopyIdentity(identity), nil
}

// EnabledProviders reports which external providers the service has configured.
func (c *Client) EnabledProviders(ctx context.Context) (map[string]bool, error) {
	var resp struct {
		External map[string]bool `json:"external"`
	}
	if err := c.do(ctx, http.MethodGet, "/settings", nil, c.anonKey, nil, &resp); err != nil {
		return nil, err
	}
	if resp.External == nil {
		resp.External = map[string]bool{}
	}
	return resp.External, nil
}

// AuthorizeURL is where the browser goes to start a federated login. The
// service sends it back to redirectTo with the session in the URL fragment.
func (c *Client) AuthorizeURL(provider, redirectTo string) string {
	q := url.Values{"provider": {provider}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/authorize?" + q.Encode()
}

// AdoptSession takes over a token pair handed back by the browser after a
// redirect, confirms it with the service and announces the new session.
func (c *Client) AdoptSession(ctx context.Context, tokens domain.Tokens, recovery bool) (*domain.Identity, error) {
	claims, err := tokenverify.Verify(c.parser, tokens.AccessToken, c.now)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindInvalidCredentials, Code: err.Error(), Message: "invalid session token", Err: err}
	}
	var user userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, tokens.AccessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID != claims.UserID {
		return nil, &domain.Error{Kind: domain.KindInvalidCredentials, Message: "session token does not match user"}
	}
	if tokens.ExpiresAt.IsZero() {
		tokens.ExpiresAt = claims.ExpiresAt
	}
	identity := user.identity()
	event := domain.EventSignedIn
	if recovery {
		event = domain.EventPasswordRecovery
	}
	c.commit(tokens, identity, event)
	return domain.CopyIdentity(identity), nil
}

// SignOut ends the remote session. The local session is dropped and
// SIGNED_OUT emitted even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	var access string
	if c.tokens != nil {
		access = c.tokens.AccessToken
	}
	c.mu.Unlock()

	var err error
	if access != "" {
		err = c.do(ctx, http.MethodPost, "/logout", nil, access, nil, nil)
		var derr *domain.Error
		if errors.As(err, &derr) && (derr.Status == http.StatusUnauthorized || derr.Status == http.StatusNotFound) {
			err = nil
		}
	}
	c.commit(domain.Tokens{}, nil, domain.EventSignedOut)
	return err
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", query, c.anonKey, map[string]string{"email": email}, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	var access string
	if c.tokens != nil {
		access = c.tokens.AccessToken
	}
	c.mu.Unlock()
	if access == "" {
		return domain.NotAuthenticated()
	}

	var user userResponse
	if err := c.do(ctx, http.MethodPut, "/user", nil, access, map[string]string{"password": newPassword}, &user); err != nil {
		return err
	}
	identity := user.identity()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return nil
	}
	c.identity = identity
	c.emit(domain.EventUserUpdated, identity)
	return nil
}

// AccessToken is the bearer for table requests: the user's token while
// signed in, the anon key otherwise.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens != nil && c.tokens.AccessToken != "" {
		return c.tokens.AccessToken
	}
	return c.anonKey
}

// Close stops the refresh timer.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// commit replaces the held session, announces it and arms the refresh timer.
func (c *Client) commit(tokens domain.Tokens, identity *domain.Identity, event domain.SessionEventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(tokens, identity)
	c.emit(event, identity)
	c.scheduleLocked()
}

// setLocked swaps the session and mirrors it to the token store. A nil
// identity clears both.
func (c *Client) setLocked(tokens domain.Tokens, identity *domain.Identity) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if identity == nil {
		c.tokens = nil
		c.identity = nil
		if c.tokenStore != nil {
			if err := c.tokenStore.Clear(); err != nil {
				c.logger.Warn().Err(err).Msg("clear stored session failed")
			}
		}
		return
	}
	c.tokens = &tokens
	c.identity = identity
	if c.tokenStore != nil {
		if err := c.tokenStore.Save(tokens); err != nil {
			c.logger.Warn().Err(err).Msg("persist session failed")
		}
	}
}

func (c *Client) scheduleLocked() {
	tokens := c.tokens
	if c.refreshMargin <= 0 || tokens == nil || tokens.RefreshToken == "" || tokens.ExpiresAt.IsZero() {
		return
	}
	wait := tokens.ExpiresAt.Sub(c.now()) - c.refreshMargin
	if wait < 0 {
		wait = 0
	}
	refresh := tokens.RefreshToken
	c.timer = time.AfterFunc(wait, func() { c.refresh(refresh) })
}

// refresh exchanges the refresh token ahead of expiry. A token the service
// refuses ends the session; an outage leaves it until the access token expires.
func (c *Client) refresh(refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()

	var resp sessionResponse
	query := url.Values{"grant_type": {"refresh_token"}}
	err := c.do(ctx, http.MethodPost, "/token", query, c.anonKey, map[string]string{"refresh_token": refreshToken}, &resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil || c.tokens.RefreshToken != refreshToken {
		return
	}
	if err != nil {
		if !rejected(err) {
			c.logger.Warn().Err(err).Msg("token refresh failed")
			return
		}
		c.logger.Warn().Err(err).Msg("refresh token rejected, signing out")
		c.setLocked(domain.Tokens{}, nil)
		c.emit(domain.EventSignedOut, nil)
		return
	}
	identity := domain.CopyIdentity(c.identity)
	if resp.User != nil {
		identity = resp.User.identity()
	}
	c.setLocked(resp.tokens(c.now()), identity)
	c.emit(domain.EventTokenRefreshed, identity)
	c.scheduleLocked()
}

// rejected reports whether the service refused a request, as opposed to
// failing to answer it.
func rejected(err error) bool {
	var de *domain.Error
	if !errors.As(err, &de) {
		return false
	}
	if de.Kind == domain.KindInvalidCredentials {
		return true
	}
	return de.Kind == domain.KindAuthService && de.Status >= 400 && de.Status < 500
}

type errorResponse struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func decodeError(status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)

	code := e.ErrorCode
	if code == "" {
		var s string
		if json.Unmarshal(e.Code, &s) == nil {
			code = s
		}
	}
	if code == "" {
		code = e.Error
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = e.ErrorDescription
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	if code == "invalid_credentials" || code == "invalid_grant" {
		return &domain.Error{Kind: domain.KindInvalidCredentials, Status: status, Code: code, Message: msg}
	}
	return domain.AuthServiceError(status, code, msg)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return domain.Unavailable(fmt.Sprintf("auth %s %s", method, path), err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.Unavailable(fmt.Sprintf("auth %s %s", method, path), err)
	}
	if res.StatusCode >= 400 {
		return decodeError(res.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode auth response: %w", err)
		}
	}
	return nil
}
