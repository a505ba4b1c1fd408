// Package artifact finds the single deployable web application archive under a
// base directory and unpacks it for serving.
package artifact
