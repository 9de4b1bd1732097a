package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/account-service/internal/domain"
)

// ProfileRepository is the profile store backed directly by postgres.
type ProfileRepository interface {
	CreateProfile(ctx context.Context, identityID string, fields domain.ProfileFields) error
	GetProfile(ctx context.Context, identityID string) (*domain.Profile, bool, error)
	FindByUsername(ctx context.Context, username string) (*domain.Profile, bool, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
}

type profileRepo struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepo{db: db} }

// Migrate creates the profile table with its unique username index.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Profile{})
}

func (r *profileRepo) CreateProfile(ctx context.Context, identityID string, fields domain.ProfileFields) error {
	if _, err := uuid.Parse(identityID); err != nil {
		return domain.Validation("invalid identity id")
	}
	if err := r.db.WithContext(ctx).Create(domain.NewProfile(identityID, fields)).Error; err != nil {
		return translate("insert profile", err)
	}
	return nil
}

func (r *profileRepo) GetProfile(ctx context.Context, identityID string) (*domain.Profile, bool, error) {
	if _, err := uuid.Parse(identityID); err != nil {
		return nil, false, nil
	}
	return r.first(ctx, "id = ?", identityID)
}

func (r *profileRepo) FindByUsername(ctx context.Context, username string) (*domain.Profile, bool, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *profileRepo) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Profile{}).Where("username = ?", username).Limit(1).Count(&count).Error; err != nil {
		return false, translate("check username", err)
	}
	return count == 0, nil
}

func (r *profileRepo) first(ctx context.Context, query string, arg string) (*domain.Profile, bool, error) {
	var profile domain.Profile
	err := r.db.WithContext(ctx).Where(query, arg).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translate("select profile", err)
	}
	return &profile, true, nil
}

// translate maps gorm errors onto the store error kinds. Duplicate keys need
// TranslateError enabled on the gorm config.
func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Conflict("profile already exists or username is taken", err)
	}
	return domain.Unavailable(op, err)
}
