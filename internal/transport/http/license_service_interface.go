package http

import "context"

// LicenseService is the caller-facing surface of the license manager as
// consumed by the HTTP facade.
type LicenseService interface {
	Activate(ctx context.Context, slug, licenseID string, extra map[string]any) (bool, error)
	Deactivate(ctx context.Context, slug string) (bool, error)
	Check(ctx context.Context, slug string, force bool) (bool, error)
	StoreLicenseID(ctx context.Context, slug, licenseID string) error
	LicenseID(ctx context.Context, slug string) (string, error)
	DeleteLicenseID(ctx context.Context, slug string) error
}
