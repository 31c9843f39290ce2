package configdb

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/lotcam/lotcam/pkg/geom"
	"gorm.io/gorm"
)

// ListZones returns all zones, ordered by ZID.
func (c *ConfigDB) ListZones() ([]Zone, error) {
	zones := []Zone{}
	if err := c.DB.Order("zid").Find(&zones).Error; err != nil {
		return nil, err
	}
	return zones, nil
}

// GetZoneByZID returns the zone, or nil if no such zone exists.
func (c *ConfigDB) GetZoneByZID(zid int64) (*Zone, error) {
	zone := Zone{}
	if err := c.DB.Where("zid = ?", zid).Find(&zone).Error; err != nil {
		return nil, err
	}
	if zone.ID == 0 {
		return nil, nil
	}
	return &zone, nil
}

// CreateZone adds a zone. If zid is zero, the next free ZID is assigned.
// The geometry is stored as-is. A degenerate polygon is legal here; the
// monitor flags it as invalid and excludes it from detection.
func (c *ConfigDB) CreateZone(zid int64, name string, vertices geom.Polygon) (*Zone, error) {
	zone := &Zone{
		ZID:       zid,
		Name:      name,
		Vertices:  *dbh.MakeJSONField(vertices),
		CreatedAt: dbh.MakeIntTime(time.Now()),
	}
	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if zone.ZID <= 0 {
			if err := tx.Raw("SELECT IFNULL(MAX(zid), 0) + 1 FROM zone").Scan(&zone.ZID).Error; err != nil {
				return err
			}
		}
		return tx.Create(zone).Error
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to create zone: %w", err)
	}
	return zone, nil
}

func (c *ConfigDB) UpdateZone(zid int64, name string, vertices geom.Polygon) (*Zone, error) {
	zone, err := c.GetZoneByZID(zid)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, fmt.Errorf("Zone %v not found", zid)
	}
	zone.Name = name
	zone.Vertices = *dbh.MakeJSONField(vertices)
	if err := c.DB.Save(zone).Error; err != nil {
		return nil, err
	}
	return zone, nil
}

func (c *ConfigDB) DeleteZone(zid int64) error {
	res := c.DB.Where("zid = ?", zid).Delete(&Zone{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("Zone %v not found", zid)
	}
	return nil
}

// zoneSeedJSON is one entry in a zone definition file. Vertices are [x,y] pairs.
type zoneSeedJSON struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Vertices [][2]float32 `json:"vertices"`
}

// ImportZonesFromFile seeds the zone table from a JSON definition file.
// The import runs only when the table is empty, so a file given on every
// startup won't clobber zones that were edited through the API.
// Returns the number of zones imported.
func (c *ConfigDB) ImportZonesFromFile(filename string) (int, error) {
	n := int64(0)
	if err := c.DB.Model(&Zone{}).Count(&n).Error; err != nil {
		return 0, err
	}
	if n != 0 {
		c.Log.Infof("Zone table is not empty. Ignoring zone file %v", filename)
		return 0, nil
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	seeds := []zoneSeedJSON{}
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("Failed to parse zone file %v: %w", filename, err)
	}
	now := dbh.MakeIntTime(time.Now())
	err = c.DB.Transaction(func(tx *gorm.DB) error {
		for i, seed := range seeds {
			polygon := make(geom.Polygon, 0, len(seed.Vertices))
			for _, v := range seed.Vertices {
				polygon = append(polygon, geom.Point{X: v[0], Y: v[1]})
			}
			zone := Zone{
				ZID:       seed.ID,
				Name:      seed.Name,
				Vertices:  *dbh.MakeJSONField(polygon),
				CreatedAt: now,
			}
			if zone.ZID <= 0 {
				zone.ZID = int64(i) + 1
			}
			if zone.Name == "" {
				zone.Name = fmt.Sprintf("Zone %v", zone.ZID)
			}
			if err := tx.Create(&zone).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Failed to import zones from %v: %w", filename, err)
	}
	c.Log.Infof("Imported %v zones from %v", len(seeds), filename)
	return len(seeds), nil
}
