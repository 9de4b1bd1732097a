package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/account-service/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ProfileClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProfileClient(srv.URL, "user_profiles", "anon-key", func() string { return "user-token" }, 2*time.Second)
}

func TestCreateProfileInsertsRow(t *testing.T) {
	id := uuid.NewString()
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/user_profiles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer user-token" || r.Header.Get("apikey") != "anon-key" {
			t.Errorf("unexpected auth headers: %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.CreateProfile(context.Background(), id, domain.ProfileFields{
		Username:    "alice",
		FullName:    "Alice A",
		Email:       "alice@example.com",
		PhoneNumber: "+1 555 0100",
		Location:    "Lisbon",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != id || got["username"] != "alice" || got["auth_provider"] != domain.ProviderEmail {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestCreateProfileConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"user_profiles_username_key\""}`))
	})
	err := c.CreateProfile(context.Background(), uuid.NewString(), domain.ProfileFields{Username: "alice", Email: "a@example.com"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateProfileUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	c := NewProfileClient(url, "user_profiles", "anon-key", nil, time.Second)

	err := c.CreateProfile(context.Background(), uuid.NewString(), domain.ProfileFields{Username: "alice"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestGetProfileFoundAndNotFound(t *testing.T) {
	id := uuid.NewString()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("select") != "*" {
			t.Errorf("unexpected select: %s", r.URL.Query().Get("select"))
		}
		if r.URL.Query().Get("id") == "eq."+id {
			_, _ = w.Write([]byte(`[{"id":"` + id + `","username":"alice","full_name":"Alice A","email":"alice@example.com","auth_provider":"email","created_at":"2026-01-02T03:04:05.123456+00:00","updated_at":"2026-01-02T03:04:05.123456+00:00"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	p, found, err := c.GetProfile(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("expected profile, got found=%v err=%v", found, err)
	}
	if p.Username != "alice" || p.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	again, _, _ := c.GetProfile(context.Background(), id)
	if !reflect.DeepEqual(p, again) {
		t.Fatalf("repeated reads differ: %+v vs %+v", p, again)
	}

	p, found, err = c.GetProfile(context.Background(), uuid.NewString())
	if err != nil || found || p != nil {
		t.Fatalf("expected not found without error, got %+v %v %v", p, found, err)
	}
}

func TestIsUsernameAvailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") == "eq.alice" {
			_, _ = w.Write([]byte(`[{"username":"alice"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	available, err := c.IsUsernameAvailable(context.Background(), "alice")
	if err != nil || available {
		t.Fatalf("alice should be taken, got %v %v", available, err)
	}
	available, err = c.IsUsernameAvailable(context.Background(), "bob")
	if err != nil || !available {
		t.Fatalf("bob should be available, got %v %v", available, err)
	}
}

func TestFindByUsernameServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, _, err := c.FindByUsername(context.Background(), "bob")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRowLevelSecurityRefusalIsServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"42501","message":"new row violates row-level security policy for table \"user_profiles\""}`))
	})
	err := c.CreateProfile(context.Background(), uuid.NewString(), domain.ProfileFields{Username: "alice"})
	if !errors.Is(err, domain.ErrAuthService) || errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected auth service error, got %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Status != http.StatusUnauthorized || de.Code != "42501" {
		t.Fatalf("status and code should pass through, got %+v", de)
	}
}

func TestRequestHonoursContextCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := c.FindByUsername(ctx, "alice")
	if !errors.Is(err, domain.ErrUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled request, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancellation not honoured")
	}
}
