// Package configdb stores the durable configuration of a lotcam system:
// users, login sessions, parking zone geometry, and misc key/value settings.
package configdb

import (
	"os"
	"path/filepath"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

type ConfigDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func NewConfigDB(logger logs.Log, dbFilename string) (*ConfigDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0770)
	configDB, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, err
	}
	c := &ConfigDB{
		Log: logger,
		DB:  configDB,
	}
	if err := c.seedAdminUser(); err != nil {
		return nil, err
	}
	c.PurgeExpiredSessions()
	return c, nil
}
