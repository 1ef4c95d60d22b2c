package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// carFile mirrors a single car config TOML document. Field names match
// the TOML keys directly, the same convention internal/config uses for
// the server's own configuration file.
type carFile struct {
	Name                string  `toml:"name"`
	MassKg              float64 `toml:"mass_kg"`
	LengthM             float64 `toml:"length_m"`
	WidthM              float64 `toml:"width_m"`
	PeakDriveForceN     float64 `toml:"peak_drive_force_n"`
	PeakBrakeForceN     float64 `toml:"peak_brake_force_n"`
	DragCoefficient     float64 `toml:"drag_coefficient"`
	RollingFrictionN    float64 `toml:"rolling_friction_n"`
	GripCoefficient     float64 `toml:"grip_coefficient"`
	MaxSteeringAngleDeg float64 `toml:"max_steering_angle_deg"`
	WheelbaseM          float64 `toml:"wheelbase_m"`
}

// LoadCarsFromDir reads every *.toml file in dir as a car config. Car
// configs are small enough that one file holds exactly one car.
func LoadCarsFromDir(dir string) ([]*model.CarConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("content: reading car directory %s: %w", dir, err)
	}

	var cars []*model.CarConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		car, err := loadCarFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}

	if len(cars) == 0 {
		return nil, &ErrEmpty{Dir: dir}
	}
	return cars, nil
}

func loadCarFile(path string) (*model.CarConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: reading car file %s: %w", path, err)
	}

	var cf carFile
	if err := toml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("content: parsing car file %s: %w", path, err)
	}

	name := cf.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".toml")
	}

	return &model.CarConfig{
		ID:                  model.CarConfigID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))),
		Name:                name,
		MassKg:              cf.MassKg,
		LengthM:             cf.LengthM,
		WidthM:              cf.WidthM,
		PeakDriveForceN:     cf.PeakDriveForceN,
		PeakBrakeForceN:     cf.PeakBrakeForceN,
		DragCoefficient:     cf.DragCoefficient,
		RollingFrictionN:    cf.RollingFrictionN,
		GripCoefficient:     cf.GripCoefficient,
		MaxSteeringAngleRad: cf.MaxSteeringAngleDeg * (3.141592653589793 / 180),
		WheelbaseM:          cf.WheelbaseM,
	}, nil
}
