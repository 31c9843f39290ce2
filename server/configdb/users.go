package configdb

import (
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/lotcam/lotcam/pkg/pwdhash"
)

// AdminPasswordEnvVar overrides the password of the seeded admin user.
const AdminPasswordEnvVar = "LOTCAM_ADMIN_PASSWORD"

const defaultAdminPassword = "admin123"

func (c *ConfigDB) GetUserFromID(id int64) (*User, error) {
	user := User{}
	if err := c.DB.Find(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *ConfigDB) ListUsers() ([]User, error) {
	users := []User{}
	if err := c.DB.Order("username_normalized").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (c *ConfigDB) CreateUser(username, password, permissions, displayName string) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("Username may not be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("Password may not be empty")
	}
	for _, p := range permissions {
		if !IsValidPermission(string(p)) {
			return nil, fmt.Errorf("Invalid permission '%v'", string(p))
		}
	}
	user := User{
		Username:           username,
		UsernameNormalized: NormalizeUsername(username),
		Permissions:        permissions,
		Name:               displayName,
		Password:           pwdhash.HashPassword(password),
		CreatedAt:          dbh.MakeIntTime(time.Now()),
	}
	if err := c.DB.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("Failed to create user '%v': %w", username, err)
	}
	return &user, nil
}

// SetUserPassword resets the password of an existing user, or creates the
// user as an admin if no such user exists. This backs the --username/--password
// recovery path on the command line.
func (c *ConfigDB) SetUserPassword(username, password string) error {
	if password == "" {
		return fmt.Errorf("Password may not be empty")
	}
	user := User{}
	c.DB.Where("username_normalized = ?", NormalizeUsername(username)).Find(&user)
	if user.ID == 0 {
		_, err := c.CreateUser(username, password, string(UserPermissionAdmin), "")
		return err
	}
	return c.DB.Model(&user).Update("password", pwdhash.HashPassword(password)).Error
}

func (c *ConfigDB) NumAdminUsers() (int, error) {
	n := int64(0)
	if err := c.DB.Model(&User{}).Where("permissions LIKE ?", "%"+UserPermissionAdmin+"%").Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// seedAdminUser creates the initial admin user on a fresh database.
// Without it there would be no way to log in to a new system.
func (c *ConfigDB) seedAdminUser() error {
	n := int64(0)
	if err := c.DB.Model(&User{}).Count(&n).Error; err != nil {
		return err
	}
	if n != 0 {
		return nil
	}
	password := os.Getenv(AdminPasswordEnvVar)
	if password == "" {
		password = defaultAdminPassword
		c.Log.Warnf("Creating admin user with the default password '%v'. Set %v before first run, or change the password immediately.", defaultAdminPassword, AdminPasswordEnvVar)
	}
	_, err := c.CreateUser("admin", password, string(UserPermissionAdmin), "Administrator")
	if err != nil {
		return err
	}
	c.Log.Infof("Created admin user 'admin'")
	return nil
}
