// Package conv provides checked integer conversions for values written to or
// read from checkpoint frames.
package conv
