package vault

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no readable entry exists.
	ErrNotFound = errors.New("vault entry not found")
	// ErrCorrupt marks an entry that exists but cannot be decrypted or decoded.
	ErrCorrupt = errors.New("vault entry corrupt")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("vault backend unavailable")
	// ErrInvalidParams is returned by Put for values that are not flat scalars.
	ErrInvalidParams = errors.New("invalid vault params")
	// ErrNoSealer is returned by constructors called without a Sealer.
	ErrNoSealer = errors.New("vault sealer required")
	// ErrInvalidNamespace is returned by constructors for unusable namespaces.
	ErrInvalidNamespace = errors.New("invalid vault namespace")
)

// Vault is a namespaced store of sealed parameter maps.
type Vault interface {
	// Namespace returns the namespace every key of this vault lives under.
	Namespace() string
	// Put drops nil fields from params and persists the rest synchronously.
	Put(ctx context.Context, id string, params Params) error
	// Get loads the params stored for id.
	Get(ctx context.Context, id string) (Params, error)
	// Delete removes the entry for id. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id string) error
}

// Purger is implemented by backends that can drop every entry of their
// namespace at once. Index state is never persisted, so entries left over
// from a previous process are unreachable and safe to purge at startup.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

func validateNamespace(namespace string) error {
	if namespace == "" || len(namespace) > 64 {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
		}
	}
	return nil
}

func corrupt(err error) error {
	return errors.Join(ErrNotFound, fmt.Errorf("%w: %v", ErrCorrupt, err))
}
