// Package buildinfo carries the version stamped in with
//
//	-ldflags "-X kestrel/internal/buildinfo.Version=v0.3.0 -X kestrel/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the window title and the
// boot banner.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Long returns every stamped field, for the boot log.
func Long() string {
	return Short() + " commit " + Commit + " built " + Date
}
