package action

// Status summarizes the markers attached to an action.
type Status int

const (
	// StatusNotFinished means no action_finished marker is present.
	StatusNotFinished Status = iota
	// StatusFinished means the action finished without an outcome marker.
	StatusFinished
	// StatusSuccessful means the action finished successfully.
	StatusSuccessful
	// StatusUnsuccessful means the agent reported failure.
	StatusUnsuccessful
	// StatusFinishedWithError means the agent faulted or never finished the
	// action itself and the dispatch boundary finished it.
	StatusFinishedWithError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNotFinished:
		return "not_finished"
	case StatusFinished:
		return "finished"
	case StatusSuccessful:
		return "finished_successfully"
	case StatusUnsuccessful:
		return "finished_unsuccessfully"
	case StatusFinishedWithError:
		return "finished_with_error"
	default:
		return "unknown"
	}
}

// IsFinished reports whether s is a terminal status.
func (s Status) IsFinished() bool { return s != StatusNotFinished }
