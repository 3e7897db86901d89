package contextx

import (
	"context"
	"fmt"
)

type VendorID string

type contextKeyVendorID struct{}

func (v VendorID) String() string {
	return string(v)
}

func WithVendorID(ctx context.Context, vendorID VendorID) context.Context {
	return context.WithValue(ctx, contextKeyVendorID{}, vendorID)
}

func VendorIDFromContext(ctx context.Context) (VendorID, error) {
	vendorID, ok := ctx.Value(contextKeyVendorID{}).(VendorID)
	if !ok {
		return "", fmt.Errorf("vendor id: %w", ErrNoValue)
	}

	return vendorID, nil
}
