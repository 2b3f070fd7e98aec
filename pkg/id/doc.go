// Package id implements compact, sortable 128-bit identifiers used to tag
// scavenge runs.
package id
