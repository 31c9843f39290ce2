package configdb

import (
	"strings"

	"github.com/cyclopcam/dbh"
	"github.com/lotcam/lotcam/pkg/geom"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type User struct {
	BaseModel
	Username           string      `json:"username"`
	UsernameNormalized string      `json:"username_normalized"`
	Permissions        string      `json:"permissions"`
	Name               string      `json:"name" gorm:"default:null"`
	Password           []byte      `json:"-" gorm:"default:null"`
	CreatedAt          dbh.IntTime `json:"createdAt"`
}

type UserPermissions string

const (
	UserPermissionAdmin  UserPermissions = "a"
	UserPermissionViewer UserPermissions = "v"
)

func (u *User) HasPermission(perm UserPermissions) bool {
	if strings.Contains(u.Permissions, string(UserPermissionAdmin)) {
		// Admin can do everything
		return true
	}
	return strings.Contains(u.Permissions, string(perm))
}

func IsValidPermission(p string) bool {
	return p == string(UserPermissionAdmin) || p == string(UserPermissionViewer)
}

func NormalizeUsername(username string) string {
	return strings.ToLower(username)
}

type Session struct {
	CreatedAt dbh.IntTime `json:"createdAt"`
	Key       []byte      `json:"key"`
	UserID    int64       `json:"userID"`
	ExpiresAt dbh.IntTime `json:"expiresAt" gorm:"default:null"`
}

// Zone is a parking zone: a polygon in frame pixel coordinates.
// ZID is the stable public identifier that the monitor, event history and
// API all refer to. It survives delete/re-import, unlike the DB rowid.
// SYNC-RECORD-ZONE
type Zone struct {
	BaseModel
	ZID       int64                       `json:"zid" gorm:"column:zid"`
	Name      string                      `json:"name"`
	Vertices  dbh.JSONField[geom.Polygon] `json:"vertices"`
	CreatedAt dbh.IntTime                 `json:"createdAt"`
}

// Key/Value pairs for system configuration
type Variable struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}
