package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/entrhq/portalkeeper/pkg/config"
)

const (
	envPrefix         = "PORTALKEEPER"
	defaultConfigFile = "portalkeeper.yaml"
)

// settings are the global flags, resolved through viper so that each can
// also come from a PORTALKEEPER_* environment variable.
type settings struct {
	v *viper.Viper
}

func newSettings() *settings {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &settings{v: v}
}

func (s *settings) configPath() string {
	return s.v.GetString("config")
}

func (s *settings) logLevel() string {
	return s.v.GetString("log-level")
}

// loadConfig reads the config file named by --config, or ./portalkeeper.yaml
// when present, and applies the log level override.
func (s *settings) loadConfig() (*config.Config, error) {
	path := s.configPath()
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return nil, fmt.Errorf("no config file: pass --config or create %s", defaultConfigFile)
		}
		path = defaultConfigFile
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level := s.logLevel(); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	s := newSettings()

	rootCmd := &cobra.Command{
		Use:           "portalkeeper",
		Short:         "Keep portal sessions logged in and download their reports",
		Long:          "portalkeeper logs in to a web portal through a real browser, keeps the session alive in the background and downloads a fixed catalog of report exports into a directory.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ./"+defaultConfigFile+")")
	flags.String("log-level", "", "log level override: debug, info, warn, error")
	for _, name := range []string{"config", "log-level"} {
		if err := s.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
				return errors.Join(errors.New("bind flags"), err)
			}
			return rootCmd
		}
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(s),
		newCheckConfigCmd(s),
		newCredentialsCmd(),
	)

	return rootCmd
}
