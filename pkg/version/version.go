// Package version reports the flowstate build version.
package version

import "runtime/debug"

// Version is set at build time via:
//
//	go build -ldflags "-X github.com/vanderheijden86/flowstate/pkg/version.Version=v1.2.3"
//
// When left empty, String falls back to the module version recorded by
// go install.
var Version = ""

// String returns the version, "dev" for untagged local builds.
func String() string {
	if Version != "" {
		return Version
	}
	return fromBuildInfo(debug.ReadBuildInfo)
}

func fromBuildInfo(read func() (*debug.BuildInfo, bool)) string {
	info, ok := read()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
