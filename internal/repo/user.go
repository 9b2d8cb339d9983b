package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/chat"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository handles user data access. It doubles as the engine's
// identity provider: the admin roster is always read from the database so
// newly registered admins are visible without a restart.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail gets a user by email. Returns nil without error when no
// account matches.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
	}
	return &user, nil
}

// GetUserByEmail satisfies chat.IdentityProvider.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.GetByEmail(ctx, email)
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// Count counts all user accounts
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

// List lists users with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	return users, err
}

// ListAdmins returns active administrators in registration order. The
// ordering is the deterministic tie-break the conversation resolver relies
// on when no explicit recipient is given.
func (r *UserRepository) ListAdmins(ctx context.Context) ([]models.AdminAccount, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Order("created_at ASC, id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
	}

	admins := make([]models.AdminAccount, 0, len(users))
	for _, u := range users {
		admins = append(admins, models.AdminAccount{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
		})
	}
	return admins, nil
}
