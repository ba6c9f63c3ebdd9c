// Package httpapi exposes the chat bridge over HTTP.
//
// # Surfaces
//
// Two surfaces share one router. The customer widget surface under /api/chat
// has no login; the storefront embeds a customer ref in its page and the
// widget sends it in the X-Customer-Ref header on every request. The admin
// surface under /api/admin authenticates with a JWT bearer token issued by
// the login endpoint.
//
// # Delivery
//
// Live events go out over SSE at the /events endpoints. The stream carries
// no durability guarantee; clients track the last sequence number they saw
// and repair gaps through the messages endpoint with after_seq.
//
// # Error mapping
//
// Sentinel errors from the store and services map to stable statuses:
// not-found conditions are 404, claim and open conflicts are 409, appends to
// a closed session are 410, authorization failures are 403, and bad
// credentials are 401.
package httpapi
