// Package model defines the shared data types of the migration pipeline:
// the tagged row value variant, datapoints, restrict entries, and the
// filter specifications that drive restrict derivation.
package model
