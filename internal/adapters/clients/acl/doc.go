// Package acl is the anti-corruption layer for outbound integrations. It
// keeps external wire formats and status codes out of the domain: adapters
// here accept domain values, build the downstream's DTOs, and translate
// every failure into a domain error.
//
// The only downstream is the TRMNL private plugin webhook:
//
//	notifier := acl.NewTRMNLNotifier(acl.TRMNLNotifierConfig{Client: webhookClient})
//	err := notifier.Notify(ctx, domain.Delivery{Quote: q, Timestamp: time.Now()})
//
// Error translation ([MapHTTPError]):
//   - transport errors, [clients.ErrCircuitOpen], [clients.ErrMaxRetriesExceeded] → [domain.ErrUnavailable]
//   - 404 → [domain.ErrNotFound]
//   - 429, 5xx → [domain.ErrUnavailable]
//   - other 4xx → [domain.ErrValidation]
package acl
