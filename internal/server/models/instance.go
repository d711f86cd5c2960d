package models

import "time"

// Instance is a registry record for one managed world server. MachineRef
// identifies the backing machine at the provisioner and is opaque to the
// registry; Address is the network address reported when the machine was
// created or last started.
type Instance struct {
	ID         int64
	Name       string
	Address    string
	Status     Status
	MachineRef string
	CreatedAt  time.Time
}
