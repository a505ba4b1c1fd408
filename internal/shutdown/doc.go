// Package shutdown implements the remote stop channel served next to the
// hosted application: a loopback-only endpoint that stops the server when
// called with the shared secret, and the client the stop command uses to
// call it.
package shutdown
