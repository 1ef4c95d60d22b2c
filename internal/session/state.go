package session

// State is a session's place in its lifecycle (§3): Lobby -> Countdown ->
// Racing -> Finished. The numeric values match codec's SessionSummary.State
// and Telemetry.SessionState wire encoding.
type State uint8

const (
	Lobby State = iota
	Countdown
	Racing
	Finished
)

func (s State) String() string {
	switch s {
	case Lobby:
		return "lobby"
	case Countdown:
		return "countdown"
	case Racing:
		return "racing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}
