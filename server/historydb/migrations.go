package historydb

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
		CREATE TABLE event(
			id INTEGER PRIMARY KEY,
			zid INT NOT NULL,
			occupied INT NOT NULL,
			at INT NOT NULL
		);
		CREATE INDEX idx_event_at ON event (at);
		CREATE INDEX idx_event_zid_at ON event (zid, at);

		CREATE TABLE sample(
			id INTEGER PRIMARY KEY,
			at INT NOT NULL,
			occupied_count INT NOT NULL,
			free_count INT NOT NULL,
			total_valid INT NOT NULL
		);
		CREATE INDEX idx_sample_at ON sample (at);
	`))

	return migs
}
