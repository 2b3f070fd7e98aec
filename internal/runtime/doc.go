// Package runtime wires storage, configuration, and the scavenge state for a
// single-node instance. The CLI and embedding engines open a Runtime and hang
// the scavenger's ports off it.
package runtime
