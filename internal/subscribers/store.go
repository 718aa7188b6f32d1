// Package subscribers persists the list of notification subscribers.
package subscribers

// Store is a durable ordered set of opaque subscriber ids.
// Add and Remove are idempotent.
type Store interface {
	Ids() ([]string, error)
	Add(id string) error
	Remove(id string) error
}
