// Package version holds the build version, overridable at link time:
//
//	go build -ldflags "-X github.com/me/framesched/internal/version.Version=1.2.3"
package version

import "runtime"

// Version is the release version of framesched.
var Version = "0.1.0"

// String returns the version with the Go toolchain it was built with.
func String() string {
	return Version + " (" + runtime.Version() + ")"
}
