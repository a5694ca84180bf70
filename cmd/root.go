package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fantuned/fantuned/cmd/fanctl"
	"github.com/fantuned/fantuned/cmd/global"
	"github.com/fantuned/fantuned/internal/daemon"
	"github.com/fantuned/fantuned/internal/settings"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fantuned",
	Short: "A daemon to control the fans of a computer.",
	Long: `fantuned is a daemon that controls the fans on your computer
based on temperature sensors, driven by curves and profiles you manage
through the fanctl command.`,
	// this is the default command to run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		setupUi()
		printHeader()

		proc, err := settings.Load(global.CfgFile)
		if err != nil {
			ui.ErrorAndNotify("Settings Error", err.Error())
			os.Exit(1)
		}
		if err := settings.EnsureParentDir(proc.ConfigPath); err != nil {
			ui.ErrorAndNotify("Settings Error", err.Error())
			os.Exit(1)
		}
		ui.Info("Using configuration document at: %s", proc.ConfigPath)
		ui.Info("Listening for fanctl connections on %s://%s", proc.SocketNetwork, proc.SocketAddress)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = daemon.Run(ctx, daemon.Options{
			ConfigPath:    proc.ConfigPath,
			Mock:          global.Mock,
			SocketNetwork: proc.SocketNetwork,
			SocketAddress: proc.SocketAddress,
			TelemetryPort: proc.TelemetryPort,
			Version:       version,
		})
		if err != nil {
			ui.ErrorAndNotify("Daemon Error", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&global.CfgFile, "config", "c", "", "process settings file (default searches ./fantuned.yaml, $HOME, /etc/fantuned/)")
	rootCmd.PersistentFlags().BoolVarP(&global.NoColor, "no-color", "", false, "Disable all terminal output coloration")
	rootCmd.PersistentFlags().BoolVarP(&global.NoStyle, "no-style", "", false, "Disable all terminal output styling")
	rootCmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "More verbose output")
	rootCmd.Flags().BoolVar(&global.Mock, "mock", false, "Run against a simulated Hardware Adapter instead of /sys/class/hwmon")

	rootCmd.AddCommand(fanctl.Command)
}

func setupUi() {
	ui.SetDebugEnabled(global.Verbose)

	if global.NoColor {
		pterm.DisableColor()
	}
	if global.NoStyle {
		pterm.DisableStyling()
	}
}

// Print a large text with the LetterStyle from the standard theme.
func printHeader() {
	err := pterm.DefaultBigText.WithLetters(
		pterm.NewLettersFromStringWithStyle("fan", pterm.NewStyle(pterm.FgLightBlue)),
		pterm.NewLettersFromStringWithStyle("tuned", pterm.NewStyle(pterm.FgWhite)),
	).Render()
	if err != nil {
		fmt.Println("fantuned")
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
