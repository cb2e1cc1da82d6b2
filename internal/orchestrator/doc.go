// Package orchestrator ties the change pipeline together: raw events from a
// watch source are debounced into batches, and every batch asks the process
// supervisor for a restart. It also owns the shutdown sequence.
package orchestrator
