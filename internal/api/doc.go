// Package api composes the handlers served on the launcher's listening port:
//   - the shutdown endpoint, routed ahead of the application.
//   - an optional Prometheus scrape endpoint.
//   - the hosted application, mounted at its context path.
//
// Every request passes through request-id, access logging, panic recovery,
// metrics and body-size middleware.
package api
