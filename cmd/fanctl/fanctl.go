// Package fanctl implements the client-side commands that talk to a
// running daemon over its IPC socket instead of touching hardware or
// the configuration document directly.
package fanctl

import (
	"context"
	"fmt"
	"time"

	"github.com/fantuned/fantuned/cmd/global"
	"github.com/fantuned/fantuned/internal/ipc"
	"github.com/fantuned/fantuned/internal/settings"
	"github.com/spf13/cobra"
)

// Command is the "fanctl" parent command, added to the root command.
// It resolves the daemon's socket address from the same process
// settings file the daemon itself reads, so fanctl needs no flags of
// its own to find a default-configured daemon.
var Command = &cobra.Command{
	Use:   "fanctl",
	Short: "Talk to a running fantuned daemon",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		proc, err := settings.Load(global.CfgFile)
		if err != nil {
			return err
		}
		global.SocketNetwork = proc.SocketNetwork
		global.SocketAddress = proc.SocketAddress
		return nil
	},
}

func init() {
	Command.AddCommand(statusCmd, sensorsCmd, fansCmd, setSpeedCmd, curveCmd, profileCmd)
}

func dial() (*ipc.Client, context.Context, context.CancelFunc, error) {
	client, err := ipc.Dial(global.SocketNetwork, global.SocketAddress)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to daemon at %s://%s: %w", global.SocketNetwork, global.SocketAddress, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	return client, ctx, cancel, nil
}
