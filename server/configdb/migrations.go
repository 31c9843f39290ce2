package configdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE user(
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			username_normalized TEXT NOT NULL,
			permissions TEXT NOT NULL,
			name TEXT,
			password BLOB,
			created_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_user_username_normalized ON user (username_normalized);

		CREATE TABLE session(
			key BLOB NOT NULL,
			user_id INT NOT NULL,
			created_at INT NOT NULL,
			expires_at INT
		);
		CREATE INDEX idx_session_key ON session (key);

		CREATE TABLE zone(
			id INTEGER PRIMARY KEY,
			zid INT NOT NULL,
			name TEXT NOT NULL,
			vertices TEXT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_zone_zid ON zone (zid);

		CREATE TABLE variable(
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`))

	return migs
}
