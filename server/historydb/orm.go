package historydb

import "github.com/cyclopcam/dbh"

// Event is one zone transition: a vehicle arrived, or a vehicle left.
type Event struct {
	ID       int64       `gorm:"primaryKey" json:"id"`
	ZID      int64       `gorm:"column:zid" json:"zid"`
	Occupied bool        `json:"occupied"`
	At       dbh.IntTime `json:"at"`
}

// Sample is a lot-wide occupancy count, taken on the first frame after each
// hour boundary. Samples power the occupancy report.
type Sample struct {
	ID            int64       `gorm:"primaryKey" json:"id"`
	At            dbh.IntTime `json:"at"`
	OccupiedCount int         `json:"occupiedCount"`
	FreeCount     int         `json:"freeCount"`
	TotalValid    int         `json:"totalValid"`
}
