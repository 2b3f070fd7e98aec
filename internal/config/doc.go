// Package config loads scour configuration from a JSON file with SCOUR_*
// environment overlays. All knobs are optional; Default() carries the
// engine defaults.
package config
