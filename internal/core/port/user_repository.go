package port

import (
	"context"
	"time"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for the shared user table.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user domain.User) (int64, error)
	// RecordLogin updates the login audit fields (logintime, loginip) and
	// resets the consecutive-failure counter.
	RecordLogin(ctx context.Context, id int64, ip string, at time.Time) error
}
