// Package version carries build identification, overridable at link time:
//
//	go build -ldflags "-X .../internal/version.Version=1.2.0 -X .../internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	Version = "0.1.0"
	Commit  = "dev"
)

func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
