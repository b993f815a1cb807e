package models

// Status is the advisory lifecycle state of a user. The entity does not
// enforce transitions; services validate them with CanTransition.
type Status string

const (
	StatusUnregistered      Status = "unregistered"
	StatusPendingActivation Status = "pending-activation"
	StatusActive            Status = "active"
	StatusSuspended         Status = "suspended"
	StatusDeactivated       Status = "deactivated"
)

var transitions = map[Status][]Status{
	StatusUnregistered:      {StatusPendingActivation},
	StatusPendingActivation: {StatusActive},
	StatusActive:            {StatusSuspended, StatusDeactivated},
	StatusSuspended:         {StatusActive, StatusDeactivated},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusUnregistered, StatusPendingActivation, StatusActive, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}
