package configdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lotcam/lotcam/pkg/geom"
)

// VariableKey is global configuration variables that can be set on the system
type VariableKey string

const (
	VarEntrance   VariableKey = "Entrance"   // "x,y" in frame pixels. Used to rank available zones.
	VarDetector   VariableKey = "Detector"   // "heuristic" or "objects"
	VarAnnotation VariableKey = "Annotation" // "0" disables the annotated video feed
)

type VariableDefinition struct {
	Key  VariableKey `json:"key"`
	Help string      `json:"help"`
}

var AllVariables = []VariableDefinition{
	{Key: VarEntrance, Help: "Entrance point in frame pixels, eg '320,470'. Available zones are ranked by distance from here."},
	{Key: VarDetector, Help: "Occupancy detector: 'heuristic' (pixel statistics) or 'objects' (neural network)."},
	{Key: VarAnnotation, Help: "Set to '0' to disable the annotated video feed."},
}

func ValidateVariable(key VariableKey, value string) error {
	switch key {
	case VarEntrance:
		if value == "" {
			return nil
		}
		_, err := ParseEntrance(value)
		return err
	case VarDetector:
		if value != "" && value != "heuristic" && value != "objects" {
			return fmt.Errorf("Invalid detector '%v'. Valid detectors are 'heuristic' and 'objects'", value)
		}
		return nil
	case VarAnnotation:
		if value != "" && value != "0" && value != "1" {
			return fmt.Errorf("Invalid annotation value '%v'. Must be '0' or '1'", value)
		}
		return nil
	}
	return fmt.Errorf("Unknown variable '%v'", key)
}

// If true, then the system must be restarted after setting this variable
func VariableSetNeedsRestart(v VariableKey) bool {
	return true
}

// ParseEntrance parses an "x,y" pair.
func ParseEntrance(value string) (geom.Point, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return geom.Point{}, fmt.Errorf("Invalid entrance '%v'. Expected 'x,y'", value)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 32)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 32)
	if errX != nil || errY != nil {
		return geom.Point{}, fmt.Errorf("Invalid entrance '%v'. Expected 'x,y'", value)
	}
	return geom.Point{X: float32(x), Y: float32(y)}, nil
}

// GetVariable returns the value of the variable, or "" if it has never been set.
func (c *ConfigDB) GetVariable(key VariableKey) (string, error) {
	v := Variable{}
	if err := c.DB.Where("key = ?", string(key)).Find(&v).Error; err != nil {
		return "", err
	}
	return v.Value, nil
}

func (c *ConfigDB) SetVariable(key VariableKey, value string) error {
	db, err := c.DB.DB()
	if err != nil {
		return err
	}
	_, err = db.Exec("INSERT INTO variable (key, value) VALUES ($1, $2) ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value", string(key), value)
	return err
}
