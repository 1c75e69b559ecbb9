package scanner

type State int32

const (
	Idle State = iota
	Scanning
	Success
	Failure
	Sleeping
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Sleeping:
		return "sleeping"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
