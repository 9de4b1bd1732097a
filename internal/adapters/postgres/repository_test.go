package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/example/account-service/internal/domain"
)

// newMockRepo opens gorm over sqlmock with the same settings the service
// uses against a real database.
func newMockRepo(t *testing.T) (ProfileRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return NewProfileRepository(db), mock
}

var profileColumns = []string{"id", "username", "full_name", "email", "phone_number", "location", "avatar_url", "auth_provider", "created_at", "updated_at"}

func TestTranslateDuplicateKeyIsConflict(t *testing.T) {
	err := translate("insert profile", fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("cause should stay reachable")
	}
}

func TestTranslateOtherErrorsAreUnavailable(t *testing.T) {
	err := translate("select profile", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCreateProfileRejectsMalformedID(t *testing.T) {
	r := NewProfileRepository(nil)
	err := r.CreateProfile(context.Background(), "not-a-uuid", domain.ProfileFields{Username: "alice"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetProfileMalformedIDIsNotFound(t *testing.T) {
	r := NewProfileRepository(nil)
	p, found, err := r.GetProfile(context.Background(), "not-a-uuid")
	if err != nil || found || p != nil {
		t.Fatalf("expected not found, got %+v %v %v", p, found, err)
	}
}

func TestProfileTableName(t *testing.T) {
	if (domain.Profile{}).TableName() != "user_profiles" {
		t.Fatalf("unexpected table name")
	}
}

func TestGetProfileReadsRow(t *testing.T) {
	r, mock := newMockRepo(t)
	id := uuid.NewString()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT \* FROM "user_profiles" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(id, "alice", "Alice A", "alice@example.com", "", "Lisbon", nil, domain.ProviderEmail, now, now))

	p, found, err := r.GetProfile(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("expected profile, got found=%v err=%v", found, err)
	}
	if p.ID != id || p.Username != "alice" || p.Location != "Lisbon" || p.AuthProvider != domain.ProviderEmail {
		t.Fatalf("unexpected profile %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetProfileMissingRowIsNotFound(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT \* FROM "user_profiles" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	p, found, err := r.GetProfile(context.Background(), uuid.NewString())
	if err != nil || found || p != nil {
		t.Fatalf("expected not found without error, got %+v %v %v", p, found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByUsernameQueryFailureIsUnavailable(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT \* FROM "user_profiles" WHERE username = \$1`).
		WillReturnError(errors.New("connection reset by peer"))

	_, _, err := r.FindByUsername(context.Background(), "alice")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestIsUsernameAvailableCountsRows(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "user_profiles" WHERE username = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "user_profiles" WHERE username = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	taken, err := r.IsUsernameAvailable(context.Background(), "alice")
	if err != nil || taken {
		t.Fatalf("alice should be taken, got %v %v", taken, err)
	}
	free, err := r.IsUsernameAvailable(context.Background(), "bob")
	if err != nil || !free {
		t.Fatalf("bob should be available, got %v %v", free, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateProfileUniqueViolationIsConflict(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "user_profiles"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "idx_user_profiles_username"`})
	mock.ExpectRollback()

	err := r.CreateProfile(context.Background(), uuid.NewString(), domain.ProfileFields{Username: "alice", Email: "alice@example.com"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateProfileInsertsRow(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "user_profiles"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := r.CreateProfile(context.Background(), uuid.NewString(), domain.ProfileFields{Username: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
