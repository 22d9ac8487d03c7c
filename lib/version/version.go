// Package version carries the build version of jailrun.
package version

// Version is set at build time:
//
//	go build -ldflags "-X github.com/onkernel/jailrun/lib/version.Version=v1.2.3"
var Version = "dev"
