package storage

import (
	"context"
	"errors"

	"github.com/dastankg/orimi-merchen/internal/models"
)

// ErrSessionNotFound is returned by Get when the identity has never written to the bot.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists one session per identity.
// Implementations must allow independent keyed access for different identities.
type SessionStore interface {
	Get(ctx context.Context, identity string) (*models.Session, error)
	Put(ctx context.Context, session *models.Session) error
	Ping(ctx context.Context) error
	Close() error
}
