// Package webhook tells downstream automation when calls start and end.
// Delivery is best effort: each event is posted as JSON with a bounded
// timeout and retried once.
package webhook
