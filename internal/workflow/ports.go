package workflow

import (
	"context"

	"github.com/dastankg/orimi-merchen/internal/models"
	"github.com/dastankg/orimi-merchen/internal/provenance"
	"github.com/dastankg/orimi-merchen/internal/services"
)

// Directory resolves an agent by phone. A nil agent with a nil error means unknown.
type Directory interface {
	FindAgent(ctx context.Context, phone string) (*models.Agent, error)
}

// Assignments lists the stores an agent must visit today.
type Assignments interface {
	AssignedStores(ctx context.Context, phone string) ([]models.StoreRef, error)
}

// StoreResolver maps a store name to its backend id. A nil ref means unknown.
type StoreResolver interface {
	ResolveStoreID(ctx context.Context, name string) (*models.StoreRef, error)
}

// Geofence checks that coordinates belong to a store.
type Geofence interface {
	CheckLocation(ctx context.Context, lat, lon float64, storeName string) (bool, error)
}

// MediaFetcher downloads an attachment into a scratch file.
type MediaFetcher interface {
	Fetch(ctx context.Context, url, ext string) (string, error)
}

// PhotoVerifier decides whether a downloaded photo is a fresh capture.
type PhotoVerifier interface {
	Verify(ctx context.Context, path, ext string) provenance.Result
}

// Submitter assembles and sends the final record.
type Submitter interface {
	Submit(ctx context.Context, agentID, storeID int64, sess *models.Session, photoPath string) services.Outcome
}
