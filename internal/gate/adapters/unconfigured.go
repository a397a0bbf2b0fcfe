package adapters

import (
	"context"
	"fmt"
	"io"

	"escrowops/internal/gate/models"
	"escrowops/pkg/platform/sentinel"
)

// Unconfigured stands in for a collaborator with no address configured.
// Every call fails, so the gate settles the intent as rejected.
type Unconfigured struct {
	Name string
}

func (u Unconfigured) err() error {
	return fmt.Errorf("%s is not configured: %w", u.Name, sentinel.ErrUnavailable)
}

func (u Unconfigured) PrepareBundle(context.Context, string, string) (models.BundleHandle, error) {
	return "", u.err()
}

func (u Unconfigured) Open(context.Context, models.BundleHandle) (io.ReadCloser, error) {
	return nil, u.err()
}

func (u Unconfigured) Submit(context.Context, models.PayoutOrder) error {
	return u.err()
}
