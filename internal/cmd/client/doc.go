// Package client contains Cobra CLI commands for Verbatim. All commands
// talk to a running server over its HTTP API.
package client
