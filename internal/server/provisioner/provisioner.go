// Package provisioner defines the compute-provisioner capability the
// lifecycle service drives. Implementations wrap a cloud compute API;
// every call is remote, latent, and fallible independent of local state,
// so callers must bound each one with a context deadline. The provisioner
// never reports status on its own: all registry status transitions happen
// after one of these calls returns.
package provisioner

import "context"

// Machine identifies one remote compute instance. Ref is the provider's
// handle and is opaque to the rest of the system; Address is the public
// network address, when the machine has one.
type Machine struct {
	Ref     string
	Address string
}

// Provisioner creates, destroys, starts, and stops remote machines.
type Provisioner interface {
	// Create brings up a fresh machine and returns its handle and address.
	Create(ctx context.Context) (*Machine, error)

	// Delete destroys the machine permanently.
	Delete(ctx context.Context, ref string) error

	// Start boots a stopped machine.
	Start(ctx context.Context, ref string) error

	// Stop shuts a machine down without destroying it.
	Stop(ctx context.Context, ref string) error

	// ListRunning reports the machines currently up on the provider side.
	ListRunning(ctx context.Context) ([]*Machine, error)
}
