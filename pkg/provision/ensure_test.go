package provision

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeBackend simulates a provider resource collection that starts empty.
type fakeBackend struct {
	resources map[string]string
	gets      int
	creates   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{resources: make(map[string]string)}
}

func (f *fakeBackend) get(name string) GetFunc[string] {
	return func(ctx context.Context) (string, error) {
		f.gets++
		if v, ok := f.resources[name]; ok {
			return v, nil
		}
		return "", NewNotFound(name, fmt.Errorf("404"))
	}
}

func (f *fakeBackend) create(name, value string) CreateFunc[string] {
	return func(ctx context.Context) (string, error) {
		f.creates++
		f.resources[name] = value
		return value, nil
	}
}

func TestEnsureCreatesOnce(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()

	first, err := Ensure(ctx, "vnet", backend.get("vnet"), backend.create("vnet", "vnet-a"))
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}

	second, err := Ensure(ctx, "vnet", backend.get("vnet"), backend.create("vnet", "vnet-b"))
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}

	if backend.creates != 1 {
		t.Errorf("expected exactly one creation call, got %d", backend.creates)
	}
	if first != second {
		t.Errorf("second result %q differs from first %q", second, first)
	}
}

func TestEnsurePropagatesUnexpectedErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("permission denied")

	_, err := Ensure(ctx, "vnet",
		func(ctx context.Context) (string, error) { return "", NewProviderError("get", "vnet", boom) },
		func(ctx context.Context) (string, error) {
			t.Fatal("create must not run on non-404 fetch failure")
			return "", nil
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error to propagate, got %v", err)
	}
}

func TestEnsureAssignmentTreatsConflictAsSatisfied(t *testing.T) {
	ctx := context.Background()

	got, err := EnsureAssignment(ctx, "role-assignment",
		func(ctx context.Context) (string, error) {
			return "", NewConflict("role-assignment", fmt.Errorf("409"))
		},
		func(ctx context.Context) (string, error) { return "existing", nil },
	)
	if err != nil {
		t.Fatalf("conflict should be satisfied, got error: %v", err)
	}
	if got != "existing" {
		t.Errorf("expected existing assignment, got %q", got)
	}
}

func TestEnsureAssignmentPropagatesOtherErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("throttled")

	_, err := EnsureAssignment(ctx, "role-assignment",
		func(ctx context.Context) (string, error) { return "", NewProviderError("create", "ra", boom) },
		nil,
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error to propagate, got %v", err)
	}
}

func TestBestEffortDeleteNeverEscalates(t *testing.T) {
	ctx := context.Background()

	// Missing resources and provider failures both continue silently.
	BestEffortDelete(ctx, "pip", func(ctx context.Context) error {
		return NewNotFound("pip", fmt.Errorf("404"))
	})
	BestEffortDelete(ctx, "nic", func(ctx context.Context) error {
		return NewProviderError("delete", "nic", errors.New("network blip"))
	})
}
