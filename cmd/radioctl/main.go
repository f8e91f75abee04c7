package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/radioctl/internal/config"
	"github.com/danmuck/radioctl/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "radioctl",
	Short: "serial driver for a mesh radio controller",
	Long: fmt.Sprintf(`radioctl (v%s)

Drives a half-duplex serial link to a mesh network controller: one request
on the wire at a time, retried on NAK and collision, with fair scheduling
across destinations. Flags may also be set as RADIOCTL_<FLAG> environment
variables (e.g. RADIOCTL_DEVICE=/dev/ttyACM0), including from .env files.`, Version),
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the radioctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("radioctl v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().String("config", "radioctl.toml", "path to the TOML config file")
	rootCmd.PersistentFlags().String("device", "", "serial device, overrides serial.device")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error, off)")

	rootCmd.AddCommand(runCmd, sendCmd, configCmd, versionCmd)
}

func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("radioctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig resolves file, env and flag settings in that order of
// precedence, lowest first. A missing file is only an error when the path
// was given explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return config.Config{}, err
	}

	path := viper.GetString("config")
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else if explicit := cmd.Flags().Changed("config") || os.Getenv("RADIOCTL_CONFIG") != ""; explicit || !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	if device := strings.TrimSpace(viper.GetString("device")); device != "" {
		cfg.Serial.Device = device
	}
	if level := strings.TrimSpace(viper.GetString("log-level")); level != "" {
		cfg.LogLevel = level
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}

	logging.ConfigureRuntime()
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Debug().Str("config", path).Str("device", cfg.Serial.Device).Msg("configuration resolved")
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
