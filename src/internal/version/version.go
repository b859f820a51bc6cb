// Package version exposes build and version metadata. The variables are
// overridden at link time with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"

	"agents-ide/src/internal/constants"
)

var (
	Version   = constants.ClientVersion
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

func GetVersion() string {
	return Version
}

func GetFullVersionInfo() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		constants.ClientName, Version, GitCommit, BuildDate, GoVersion)
}
