package buildinfo

// Version is filled in by the release build system, eg
// go build -ldflags "-X github.com/lotcam/lotcam/pkg/buildinfo.Version=1.2.3"
var Version = "dev"
