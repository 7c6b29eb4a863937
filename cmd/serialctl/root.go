package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/oy3o/serial"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	Version = "0.3.0"
)

var (
	log = zap.NewNop()

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "serialctl",
		Short: "inspect and exercise serial payloads",
		Long: fmt.Sprintf(`serialctl (v%s)

Inspects payloads written by the serial package and round-trips a sample
object graph through every engine.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of serialctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("serialctl v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(inspectCmd)
	RootCmd.AddCommand(selftestCmd)

	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("checked", false, "frame every value with a type index and a size trailer")
	RootCmd.PersistentFlags().Int("max-depth", serial.DefaultMaxDepth, "maximum traversal depth")
}

// initConfig loads env files and lets SERIAL_* variables override flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("serial")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	l, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	log = l
	serial.SetLogger(log)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core), nil
}

// options builds the serial options selected by flags and environment.
func options() []serial.Option {
	return []serial.Option{
		serial.WithErrorChecking(viper.GetBool("checked")),
		serial.WithMaxDepth(viper.GetInt("max-depth")),
		serial.WithLogger(log),
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	defer func() { _ = log.Sync() }()
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
