package models

import "fmt"

// Status is the lifecycle state of a managed instance. Transitions are
// driven synchronously by the lifecycle service after each provisioner
// call returns; the registry row is the sole source of truth.
type Status string

const (
	StatusOff         Status = "OFF"
	StatusPending     Status = "PENDING"
	StatusOn          Status = "ON"
	StatusPendingDown Status = "PENDING_DOWN"

	// StatusError marks an instance whose last transition ended with an
	// unknown remote outcome. It requires administrator reconciliation;
	// no transition leaves it automatically.
	StatusError Status = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOff, StatusPending, StatusOn, StatusPendingDown, StatusError:
		return true
	}
	return false
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}
