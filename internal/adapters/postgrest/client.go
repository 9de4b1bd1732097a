package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/account-service/internal/domain"
)

// TokenSource yields the bearer for each request, normally the signed in
// user's access token so row level security applies.
type TokenSource func() string

// ProfileClient reads and writes the profile table through the hosted
// PostgREST endpoint.
type ProfileClient struct {
	baseURL string
	table   string
	anonKey string
	token   TokenSource
	client  *http.Client
}

func NewProfileClient(baseURL, table, anonKey string, token TokenSource, timeout time.Duration) *ProfileClient {
	if token == nil {
		token = func() string { return anonKey }
	}
	return &ProfileClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1",
		table:   table,
		anonKey: anonKey,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type profileRow struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	FullName     string  `json:"full_name"`
	Email        string  `json:"email"`
	PhoneNumber  string  `json:"phone_number"`
	Location     string  `json:"location"`
	AuthProvider string  `json:"auth_provider"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
}

func (c *ProfileClient) CreateProfile(ctx context.Context, identityID string, fields domain.ProfileFields) error {
	if _, err := uuid.Parse(identityID); err != nil {
		return domain.Validation("invalid identity id")
	}
	p := domain.NewProfile(identityID, fields)
	row := profileRow{
		ID:           p.ID,
		Username:     p.Username,
		FullName:     p.FullName,
		Email:        p.Email,
		PhoneNumber:  p.PhoneNumber,
		Location:     p.Location,
		AuthProvider: p.AuthProvider,
	}
	return c.do(ctx, http.MethodPost, nil, row, nil)
}

func (c *ProfileClient) GetProfile(ctx context.Context, identityID string) (*domain.Profile, bool, error) {
	if _, err := uuid.Parse(identityID); err != nil {
		return nil, false, nil
	}
	return c.selectOne(ctx, "*", "id", identityID)
}

func (c *ProfileClient) FindByUsername(ctx context.Context, username string) (*domain.Profile, bool, error) {
	return c.selectOne(ctx, "*", "username", username)
}

func (c *ProfileClient) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, found, err := c.selectOne(ctx, "username", "username", username)
	if err != nil {
		return false, err
	}
	return !found, nil
}

func (c *ProfileClient) selectOne(ctx context.Context, columns, column, value string) (*domain.Profile, bool, error) {
	query := url.Values{
		"select": {columns},
		column:   {"eq." + value},
		"limit":  {"1"},
	}
	var rows []domain.Profile
	if err := c.do(ctx, http.MethodGet, query, nil, &rows); err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

const uniqueViolation = "23505"

func decodeError(op string, status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	cause := fmt.Errorf("profile store %s: %d %s", op, status, msg)
	switch {
	case status == http.StatusConflict || e.Code == uniqueViolation:
		return &domain.Error{Kind: domain.KindConflict, Status: status, Code: e.Code, Message: "profile already exists or username is taken", Err: cause}
	case status >= http.StatusInternalServerError:
		return &domain.Error{Kind: domain.KindUnavailable, Status: status, Code: e.Code, Message: "profile store unavailable", Err: cause}
	default:
		// 401 and 403 are row level security refusals; the service answered.
		return &domain.Error{Kind: domain.KindAuthService, Status: status, Code: e.Code, Message: msg, Err: cause}
	}
}

func (c *ProfileClient) do(ctx context.Context, method string, query url.Values, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	target := fmt.Sprintf("%s/%s", c.baseURL, c.table)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.token())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	op := strings.ToLower(method)
	res, err := c.client.Do(req)
	if err != nil {
		return domain.Unavailable("profile store "+op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.Unavailable("profile store "+op, err)
	}
	if res.StatusCode >= 400 {
		return decodeError(op, res.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode profile response: %w", err)
		}
	}
	return nil
}
