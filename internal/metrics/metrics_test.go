package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/account-service/internal/domain"
)

func TestObserveOperationLabelsResultKind(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveOperation("sign_up", nil)
	c.ObserveOperation("sign_up", domain.UsernameTaken("alice"))
	c.ObserveOperation("sign_up", domain.UsernameTaken("bob"))
	c.ObserveOperation("sign_in", errors.New("plain"))

	if v := testutil.ToFloat64(c.operations.WithLabelValues("sign_up", "ok")); v != 1 {
		t.Fatalf("expected 1 ok sign_up, got %v", v)
	}
	if v := testutil.ToFloat64(c.operations.WithLabelValues("sign_up", "username_taken")); v != 2 {
		t.Fatalf("expected 2 username_taken, got %v", v)
	}
	if v := testutil.ToFloat64(c.operations.WithLabelValues("sign_in", "error")); v != 1 {
		t.Fatalf("expected 1 untyped error, got %v", v)
	}
}

func TestObserveStateSetsGauge(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveState(domain.StateAuthenticated)

	if v := testutil.ToFloat64(c.sessionState); v != 2 {
		t.Fatalf("expected gauge 2, got %v", v)
	}
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	NewCollector(reg)
}
