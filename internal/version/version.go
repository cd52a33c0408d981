package version

// Set at build time via -ldflags
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// HostAPIs lists the plugin API versions this build of the host speaks,
// oldest first.
var HostAPIs = []string{"3.0", "3.1"}
