// Package version holds build metadata injected through ldflags and the
// `version` subcommand shared by the threshold-alarm binaries.
package version
