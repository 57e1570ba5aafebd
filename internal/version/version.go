package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

const banner = `
##########################################
             _       _     _
 __ __ ____ _| |_ ___| |_ __| |___  __ _
 \ V  V / _' |  _/ _|| ' \/ _' / _ \/ _' |
  \_/\_/\__,_|\__\__||_||_\__,_\___/\__, |
                                    |___/
##########################################`

// Banner returns the startup banner followed by the version line.
func Banner() string {
	return fmt.Sprintf("%s\nVersion: %s\n", banner, Version)
}
