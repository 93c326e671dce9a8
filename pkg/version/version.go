// Package version holds build-time version info injected via ldflags.
//
//	go build -ldflags "-X github.com/voclink/voclink/pkg/version.tag=v0.1.0
//	  -X github.com/voclink/voclink/pkg/version.commit=abc1234"
package version

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""        // git tag, empty if not on a tag
	commit = "unknown" // short git commit SHA
)

// String returns a human-readable version string.
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}
