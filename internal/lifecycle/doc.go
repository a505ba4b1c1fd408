// Package lifecycle owns the embedded HTTP server: it resolves what to serve
// from the configuration, binds the listener, and moves the server through
// Stopped, Starting, Running and Stopping under a single mutex so that a
// remote shutdown request and a local stop never tear the server down twice.
package lifecycle
