// Package transport sends built queries to remote backends.
//
// Implementations:
//
//   - HTTPTransport posts GraphQL documents as JSON
//   - FlightTransport runs queries over Arrow Flight DoGet with a MessagePack ticket
//   - SQLTransport executes SQL statements on a database/sql handle
//   - MockTransport returns canned results after a delay, for tests and demos
//
// Every failure is reported as *Error carrying a Kind:
//
//	res, err := t.Fetch(ctx, q)
//	switch {
//	case errors.Is(err, transport.ErrNetworkFailure):
//	case errors.Is(err, transport.ErrBackendError):
//	case errors.Is(err, transport.ErrTimeout):
//	}
//
// Transports never retry; retry policy belongs to the caller.
package transport
