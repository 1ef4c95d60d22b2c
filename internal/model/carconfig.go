package model

// CarConfig holds the static physical parameters of a vehicle model (§3).
// Once registered with the content loader, a CarConfig is immutable.
type CarConfig struct {
	ID                     CarConfigID
	Name                   string
	MassKg                 float64
	LengthM                float64
	WidthM                 float64
	PeakDriveForceN        float64
	PeakBrakeForceN        float64
	DragCoefficient        float64
	RollingFrictionN       float64
	GripCoefficient        float64
	MaxSteeringAngleRad    float64
	WheelbaseM             float64
}
