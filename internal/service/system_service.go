package service

import (
	"context"

	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/version"
)

// SystemService handles system-related operations
type SystemService struct {
	db *database.DB
}

// NewSystemService creates a new SystemService
func NewSystemService(db *database.DB) *SystemService {
	return &SystemService{
		db: db,
	}
}

// CheckHealth checks the health of the system
func (s *SystemService) CheckHealth(ctx context.Context) error {
	return database.HealthCheck(ctx, s.db.DB)
}

// CheckVersion reports the application version and the schema state.
func (s *SystemService) CheckVersion(ctx context.Context) (model.VersionInfo, error) {
	status, err := database.Status(ctx, s.db)
	if err != nil {
		return model.VersionInfo{}, err
	}

	return model.VersionInfo{
		AppVersion:      version.Version,
		DbVersion:       status.Current,
		LatestVersion:   status.Latest,
		Dialect:         string(s.db.Dialect),
		MigrationNeeded: status.Pending(),
	}, nil
}
