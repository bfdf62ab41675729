// Package utils holds small helpers shared across the relay that are too
// slight to warrant their own package.
package utils

// Build metadata, overridden at release time via -ldflags
// (see the BuildRelease pipeline target).
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
