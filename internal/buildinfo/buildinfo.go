package buildinfo

// Set with -ldflags "-X github.com/ruralpay/ledger/internal/buildinfo.Version=..." at release.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
