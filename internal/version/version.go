package version

import "fmt"

var (
	CLIName    = "agencybot"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent is sent on outbound indexer requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", CLIName, CLIVersion)
}
