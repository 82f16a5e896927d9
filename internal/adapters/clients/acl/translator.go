package acl

import (
	"context"
	"net/http"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/clients"
	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
)

// BaseAdapter holds what every outbound adapter needs: the instrumented
// client and the downstream name used in domain errors.
type BaseAdapter struct {
	client      *clients.Client
	serviceName string
}

// NewBaseAdapter creates a base adapter.
func NewBaseAdapter(client *clients.Client, serviceName string) BaseAdapter {
	return BaseAdapter{
		client:      client,
		serviceName: serviceName,
	}
}

// Client returns the underlying HTTP client.
func (a *BaseAdapter) Client() *clients.Client {
	return a.client
}

// ServiceName returns the downstream name.
func (a *BaseAdapter) ServiceName() string {
	return a.serviceName
}

// PostJSON sends v as JSON and discards the response body. Any transport
// failure or non-2xx status comes back as a domain error.
func (a *BaseAdapter) PostJSON(ctx context.Context, path string, v any, operation string) (int, error) {
	resp, err := a.client.PostJSON(ctx, path, v)
	if err != nil {
		return 0, MapHTTPError(nil, err, a.serviceName, operation, "")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, MapHTTPError(resp, nil, a.serviceName, operation, "")
	}

	return resp.StatusCode, nil
}

// ValidateRequired returns a domain.ValidationError when value is empty.
func ValidateRequired(value, fieldName string) error {
	if value == "" {
		return domain.NewValidationError(fieldName, "is required")
	}

	return nil
}
