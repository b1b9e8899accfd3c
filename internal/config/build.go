package config

// Set at link time:
//
//	go build -ldflags "-X snipper/internal/config.version=$(git describe --tags) \
//	    -X snipper/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X snipper/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

// String renders the build as "version (commit, buildTime)" for startup logs.
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ", " + b.BuildTime + ")"
}
