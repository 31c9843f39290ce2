package configdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/google/go-cmp/cmp"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/pkg/pwdhash"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) *ConfigDB {
	return createTestDBAt(t, filepath.Join(t.TempDir(), "config.sqlite"))
}

func createTestDBAt(t *testing.T, filename string) *ConfigDB {
	c, err := NewConfigDB(logs.NewTestingLog(t), filename)
	require.NoError(t, err)
	return c
}

func TestAdminSeed(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "")
	filename := filepath.Join(t.TempDir(), "config.sqlite")
	c := createTestDBAt(t, filename)

	users, err := c.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "admin", users[0].Username)
	require.True(t, users[0].HasPermission(UserPermissionAdmin))

	admin, err := c.GetUserFromID(users[0].ID)
	require.NoError(t, err)
	require.True(t, pwdhash.VerifyHash("admin123", admin.Password))

	nAdmin, err := c.NumAdminUsers()
	require.NoError(t, err)
	require.Equal(t, 1, nAdmin)

	// Seeding only happens on an empty user table
	c2 := createTestDBAt(t, filename)
	users2, err := c2.ListUsers()
	require.NoError(t, err)
	require.Len(t, users2, 1)
}

func TestAdminSeedFromEnv(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "hunter2")
	c := createTestDB(t)
	users, err := c.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.True(t, pwdhash.VerifyHash("hunter2", users[0].Password))
	require.False(t, pwdhash.VerifyHash("admin123", users[0].Password))
}

func TestUsers(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "")
	c := createTestDB(t)

	_, err := c.CreateUser("", "xyz", "v", "")
	require.Error(t, err)
	_, err = c.CreateUser("bob", "", "v", "")
	require.Error(t, err)
	_, err = c.CreateUser("bob", "xyz", "q", "")
	require.Error(t, err)

	bob, err := c.CreateUser("Bob", "bobpass", "v", "Bob the Viewer")
	require.NoError(t, err)
	require.Equal(t, "bob", bob.UsernameNormalized)
	require.True(t, bob.HasPermission(UserPermissionViewer))
	require.False(t, bob.HasPermission(UserPermissionAdmin))

	// Usernames are unique after normalization
	_, err = c.CreateUser("BOB", "otherpass", "v", "")
	require.Error(t, err)

	users, err := c.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "admin", users[0].UsernameNormalized)
	require.Equal(t, "bob", users[1].UsernameNormalized)

	require.NoError(t, c.SetUserPassword("bob", "newpass"))
	bob2, err := c.GetUserFromID(bob.ID)
	require.NoError(t, err)
	require.True(t, pwdhash.VerifyHash("newpass", bob2.Password))
	require.False(t, pwdhash.VerifyHash("bobpass", bob2.Password))

	// SetUserPassword on an unknown user creates an admin
	require.NoError(t, c.SetUserPassword("carol", "carolpass"))
	nAdmin, err := c.NumAdminUsers()
	require.NoError(t, err)
	require.Equal(t, 2, nAdmin)
}

func TestSessions(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "")
	c := createTestDB(t)
	users, err := c.ListUsers()
	require.NoError(t, err)
	adminID := users[0].ID

	w := httptest.NewRecorder()
	c.LoginInternal(w, adminID, time.Time{}, LoginModeCookieAndBearerToken)
	require.Equal(t, http.StatusOK, w.Code)

	resp := loginResponseJSON{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.BearerToken)

	cookieValue := ""
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == SessionCookie {
			cookieValue = cookie.Value
		}
	}
	require.NotEmpty(t, cookieValue)

	// Cookie
	r := httptest.NewRequest("GET", "/api/auth/whoami", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookieValue})
	require.Equal(t, adminID, c.GetUserID(r, false))
	require.Equal(t, "admin", c.GetUser(r).Username)

	// Cookie in a header
	r = httptest.NewRequest("GET", "/api/auth/whoami", nil)
	r.Header.Set("X-Session-Cookie", cookieValue)
	require.Equal(t, adminID, c.GetUserID(r, false))

	// Bearer token
	r = httptest.NewRequest("GET", "/api/auth/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+resp.BearerToken)
	require.Equal(t, adminID, c.GetUserID(r, false))

	// Bearer token as a query parameter
	r = httptest.NewRequest("GET", "/video_feed?authorizationToken="+resp.BearerToken, nil)
	require.Equal(t, adminID, c.GetUserID(r, false))

	// Garbage
	r = httptest.NewRequest("GET", "/api/auth/whoami", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "nonsense"})
	require.Equal(t, int64(0), c.GetUserID(r, false))

	// BASIC is only honored when the endpoint opts in
	r = httptest.NewRequest("GET", "/api/auth/login", nil)
	r.SetBasicAuth("admin", "admin123")
	require.Equal(t, int64(0), c.GetUserID(r, false))
	require.Equal(t, adminID, c.GetUserID(r, true))
	r = httptest.NewRequest("GET", "/api/auth/login", nil)
	r.SetBasicAuth("admin", "wrongpass")
	require.Equal(t, int64(0), c.GetUserID(r, true))

	// Expired sessions don't authenticate, and get purged
	now := time.Now()
	expired := Session{
		CreatedAt: dbh.MakeIntTime(now.Add(-2 * time.Hour)),
		Key:       pwdhash.HashSessionToken("expiredtoken"),
		UserID:    adminID,
		ExpiresAt: dbh.MakeIntTime(now.Add(-time.Hour)),
	}
	require.NoError(t, c.DB.Create(&expired).Error)
	r = httptest.NewRequest("GET", "/api/auth/whoami", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "expiredtoken"})
	require.Equal(t, int64(0), c.GetUserID(r, false))

	c.PurgeExpiredSessions()
	n := int64(0)
	require.NoError(t, c.DB.Model(&Session{}).Where("key = ?", expired.Key).Count(&n).Error)
	require.Equal(t, int64(0), n)

	// Logout deletes the cookie session
	w = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/api/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookieValue})
	c.Logout(w, r)
	r = httptest.NewRequest("GET", "/api/auth/whoami", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookieValue})
	require.Equal(t, int64(0), c.GetUserID(r, false))
}

func TestZones(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "")
	c := createTestDB(t)

	poly := geom.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 60}, {X: 0, Y: 60}}
	z1, err := c.CreateZone(0, "A1", poly)
	require.NoError(t, err)
	require.Equal(t, int64(1), z1.ZID)

	z2, err := c.CreateZone(0, "A2", poly)
	require.NoError(t, err)
	require.Equal(t, int64(2), z2.ZID)

	z10, err := c.CreateZone(10, "B1", poly)
	require.NoError(t, err)
	require.Equal(t, int64(10), z10.ZID)

	// Auto-assignment continues after the highest explicit ZID
	z11, err := c.CreateZone(0, "B2", poly)
	require.NoError(t, err)
	require.Equal(t, int64(11), z11.ZID)

	// ZIDs are unique
	_, err = c.CreateZone(10, "dup", poly)
	require.Error(t, err)

	zones, err := c.ListZones()
	require.NoError(t, err)
	require.Len(t, zones, 4)
	require.Equal(t, []int64{1, 2, 10, 11}, []int64{zones[0].ZID, zones[1].ZID, zones[2].ZID, zones[3].ZID})
	require.Equal(t, poly, zones[0].Vertices.Data)

	moved := geom.Polygon{{X: 5, Y: 5}, {X: 95, Y: 5}, {X: 95, Y: 55}}
	updated, err := c.UpdateZone(10, "B1-moved", moved)
	require.NoError(t, err)
	require.Equal(t, "B1-moved", updated.Name)

	fetched, err := c.GetZoneByZID(10)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, moved, fetched.Vertices.Data)

	missing, err := c.GetZoneByZID(999)
	require.NoError(t, err)
	require.Nil(t, missing)
	_, err = c.UpdateZone(999, "x", moved)
	require.Error(t, err)

	require.NoError(t, c.DeleteZone(2))
	require.Error(t, c.DeleteZone(2))
	zones, err = c.ListZones()
	require.NoError(t, err)
	require.Len(t, zones, 3)
}

func TestZoneImport(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "")
	c := createTestDB(t)

	seed := `[
		{"id": 1, "name": "A1", "vertices": [[10,20],[110,20],[110,80],[10,80]]},
		{"id": 7, "name": "A2", "vertices": [[120,20],[220,20],[220,80],[120,80]]},
		{"vertices": [[230,20],[330,20],[330,80]]}
	]`
	filename := filepath.Join(t.TempDir(), "zones.json")
	require.NoError(t, os.WriteFile(filename, []byte(seed), 0644))

	n, err := c.ImportZonesFromFile(filename)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	zones, err := c.ListZones()
	require.NoError(t, err)
	require.Len(t, zones, 3)

	type importedZone struct {
		ZID      int64
		Name     string
		Vertices geom.Polygon
	}
	got := []importedZone{}
	for _, z := range zones {
		got = append(got, importedZone{z.ZID, z.Name, z.Vertices.Data})
	}
	// The unnamed third entry gets a ZID from its file position, and a name from its ZID
	expected := []importedZone{
		{1, "A1", geom.Polygon{{X: 10, Y: 20}, {X: 110, Y: 20}, {X: 110, Y: 80}, {X: 10, Y: 80}}},
		{3, "Zone 3", geom.Polygon{{X: 230, Y: 20}, {X: 330, Y: 20}, {X: 330, Y: 80}}},
		{7, "A2", geom.Polygon{{X: 120, Y: 20}, {X: 220, Y: 20}, {X: 220, Y: 80}, {X: 120, Y: 80}}},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("Imported zones mismatch (-want +got):\n%s", diff)
	}

	// A second import on a non-empty table is a no-op
	n, err = c.ImportZonesFromFile(filename)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	zones, err = c.ListZones()
	require.NoError(t, err)
	require.Len(t, zones, 3)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	c2 := createTestDB(t)
	_, err = c2.ImportZonesFromFile(bad)
	require.Error(t, err)
}

func TestVariables(t *testing.T) {
	t.Setenv(AdminPasswordEnvVar, "")
	c := createTestDB(t)

	v, err := c.GetVariable(VarEntrance)
	require.NoError(t, err)
	require.Equal(t, "", v)

	require.NoError(t, c.SetVariable(VarEntrance, "320,470"))
	v, err = c.GetVariable(VarEntrance)
	require.NoError(t, err)
	require.Equal(t, "320,470", v)

	require.NoError(t, c.SetVariable(VarEntrance, "10,20"))
	v, err = c.GetVariable(VarEntrance)
	require.NoError(t, err)
	require.Equal(t, "10,20", v)

	require.NoError(t, ValidateVariable(VarEntrance, "320,470"))
	require.Error(t, ValidateVariable(VarEntrance, "potato"))
	require.NoError(t, ValidateVariable(VarDetector, "objects"))
	require.Error(t, ValidateVariable(VarDetector, "magic"))
	require.NoError(t, ValidateVariable(VarAnnotation, "0"))
	require.Error(t, ValidateVariable(VarAnnotation, "maybe"))
	require.Error(t, ValidateVariable("Bogus", "1"))

	p, err := ParseEntrance(" 320 , 470 ")
	require.NoError(t, err)
	require.Equal(t, geom.Point{X: 320, Y: 470}, p)
	_, err = ParseEntrance("1,2,3")
	require.Error(t, err)
}
