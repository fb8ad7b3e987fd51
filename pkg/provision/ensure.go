package provision

import (
	"context"

	"github.com/rs/zerolog/log"
)

// GetFunc fetches a resource by its deterministic name. It returns a
// ClassNotFound error when the resource does not exist.
type GetFunc[T any] func(ctx context.Context) (T, error)

// CreateFunc creates a resource with fixed, versioned defaults and the
// ownership tag.
type CreateFunc[T any] func(ctx context.Context) (T, error)

// Ensure is the ensure-or-create primitive every target builds on:
//
//  1. Fetch the resource by its deterministic name.
//  2. If found, return it unchanged. Creation never diffs or updates in
//     place; drift correction is out of scope.
//  3. If the fetch failed with not-found, create the resource and return
//     the fresh copy.
//  4. Any other failure propagates unchanged.
//
// This makes Install safe to call repeatedly after a crash mid-provisioning
// without producing duplicate resources.
func Ensure[T any](ctx context.Context, resource string, get GetFunc[T], create CreateFunc[T]) (T, error) {
	existing, err := get(ctx)
	if err == nil {
		log.Debug().Str("resource", resource).Msg("resource exists, reusing")
		return existing, nil
	}
	if !IsNotFound(err) {
		var zero T
		return zero, err
	}

	log.Info().Str("resource", resource).Msg("resource not found, creating")
	created, err := create(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return created, nil
}

// EnsureAssignment is the idempotency discipline for role and secret
// assignments: the assignment's own identifier is a deterministic hash of
// its inputs, so the create is attempted first and a provider conflict
// means the assignment already exists and is treated as satisfied. On
// conflict the existing assignment is fetched and returned when a get is
// supplied; otherwise the zero value is returned with a nil error.
func EnsureAssignment[T any](ctx context.Context, resource string, create CreateFunc[T], get GetFunc[T]) (T, error) {
	created, err := create(ctx)
	if err == nil {
		log.Debug().Str("resource", resource).Msg("assignment created")
		return created, nil
	}
	if !IsConflict(err) {
		var zero T
		return zero, err
	}

	log.Debug().Str("resource", resource).Msg("assignment already satisfied")
	if get == nil {
		var zero T
		return zero, nil
	}
	return get(ctx)
}

// Advisory runs a best-effort operation whose failure is logged and never
// escalated. Used for steps like application-gateway backend-pool updates,
// where the backend may legitimately not exist yet.
func Advisory(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("advisory operation failed")
	}
}

// BestEffortDelete runs one teardown step. Not-found is silently fine,
// anything else is logged for operator attention, and the step never blocks
// the remaining teardown. Full teardown must be resilient to partial prior
// teardown.
func BestEffortDelete(ctx context.Context, resource string, fn func(context.Context) error) {
	err := fn(ctx)
	switch {
	case err == nil:
		log.Debug().Str("resource", resource).Msg("resource deleted")
	case IsNotFound(err):
		log.Debug().Str("resource", resource).Msg("resource already gone")
	default:
		log.Warn().Err(err).Str("resource", resource).Msg("delete failed, continuing teardown")
	}
}
