// Package global holds the persistent flag values shared by the root
// command and every fanctl subcommand.
package global

var (
	CfgFile string
	NoColor bool
	NoStyle bool
	Verbose bool

	Mock bool

	SocketNetwork = "unix"
	SocketAddress = "/run/fantuned.sock"
)
