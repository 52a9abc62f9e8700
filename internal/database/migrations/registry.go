package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/zapengine/internal/models"
)

// AllMigrations returns the full set of migrations for a fresh
// zapengine database. A single AutoMigrate pass covers the overseer's
// schema (internal/models.IngestEndpoint/User/UserStream); there is
// nothing left from the teacher's channel/EPG/proxy schema to carry
// forward, since those tables belonged to a subsystem this rework
// replaces entirely.
func AllMigrations() []Migration {
	return []Migration{
		{
			Version:     "0001",
			Description: "create ingest_endpoints, users, user_streams",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.IngestEndpoint{},
					&models.User{},
					&models.UserStream{},
				)
			},
		},
	}
}
