// Package process supervises a single child process: start it, restart it on
// request, and take it down with a graceful signal followed by a kill.
package process
