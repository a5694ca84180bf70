// Package settings resolves the process-level options the daemon needs
// before the Configuration Store even exists: where its socket binds,
// what port telemetry listens on, and where the domain configuration
// document lives. It is a thin layer below configstore, grounded on the
// teacher's internal/configuration package's viper-based InitConfig,
// adapted from a single flat Configuration struct to the handful of
// process settings that can't themselves live inside the document the
// Configuration Store manages.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fantuned/fantuned/internal/ui"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Process holds every setting resolved before daemon.Run is called.
type Process struct {
	ConfigPath    string
	SocketNetwork string
	SocketAddress string
	TelemetryPort int
}

// Load resolves process settings the way internal/configuration
// resolves its config file: an explicit --config flag wins outright, otherwise
// viper searches ".", $HOME, and /etc/fantuned/ for "fantuned.yaml".
// Values read from that file seed the socket path, telemetry port, and
// the domain configuration document's own path; any of them can still
// be overridden by FANTUNED_-prefixed environment variables.
func Load(explicitConfigFile string) (Process, error) {
	v := viper.New()
	v.SetConfigName("fantuned")
	v.SetEnvPrefix("fantuned")
	v.AutomaticEnv()

	v.SetDefault("socket_network", "unix")
	v.SetDefault("socket_address", "/run/fantuned.sock")
	v.SetDefault("telemetry_port", 9000)
	v.SetDefault("config_path", defaultConfigDocumentPath())

	if explicitConfigFile != "" {
		v.SetConfigFile(explicitConfigFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath("/etc/fantuned/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Process{}, fmt.Errorf("reading process settings: %w", err)
		}
		ui.Debug("No fantuned.yaml process settings file found, using defaults")
	}

	return Process{
		ConfigPath:    v.GetString("config_path"),
		SocketNetwork: v.GetString("socket_network"),
		SocketAddress: v.GetString("socket_address"),
		TelemetryPort: v.GetInt("telemetry_port"),
	}, nil
}

// defaultConfigDocumentPath places the domain configuration document
// under the user's home directory, falling back to the system
// directory fan2go itself used when home can't be resolved (e.g.
// running as a system service under a locked-down user).
func defaultConfigDocumentPath() string {
	if home, err := homedir.Dir(); err == nil {
		return filepath.Join(home, ".fantuned", "config.json")
	}
	return "/etc/fantuned/config.json"
}

// EnsureParentDir creates the directory holding path if it does not
// already exist.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
