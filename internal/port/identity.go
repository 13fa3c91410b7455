package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/market-core/internal/core/domain"
)

// ErrInvalidCredential is returned for a missing, malformed or expired credential.
var ErrInvalidCredential = errors.New("invalid authentication token")

type Authenticator interface {
	// Authenticate resolves a caller credential to a stable user id.
	Authenticate(ctx context.Context, credential string) (int64, error)
}

type RoleDirectory interface {
	HasRole(ctx context.Context, userID int64, role domain.Role) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
