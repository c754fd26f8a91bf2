package db

import (
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

// Open opens (creating if needed) the remediation ledger at path and runs
// migrations
func Open(path string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open remediation ledger %s", path)
	}

	if err := database.AutoMigrate(&types.RemediationEvent{}); err != nil {
		return nil, errors.Wrap(err, "migrate remediation ledger")
	}

	return database, nil
}
