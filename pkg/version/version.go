// Package version provides version information for the ivindex service.
package version

// Version is the current version of ivindex.
const Version = "0.4.0"

// AgentString returns the User-Agent sent to venue APIs.
// Format: ivindex-go/v{version}
func AgentString() string {
	return "ivindex-go/v" + Version
}
