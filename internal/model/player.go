package model

// Player is a participant with a stable identity, independent of which
// session (if any) it currently belongs to (§3).
type Player struct {
	ID           PlayerID
	Name         string
	ConnectionID ConnectionID // zero for AI players, which have no connection
	CarConfigID  CarConfigID  // zero value until SelectCar is called
	IsAI         bool
}

// HasCarSelected reports whether the player picked a car config.
func (p *Player) HasCarSelected() bool {
	return p.CarConfigID != CarConfigID{}
}
