// Package serverrun wires the runtime and HTTP server together and runs
// them until the process is signalled to stop.
package serverrun
