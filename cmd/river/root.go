package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree with its own viper instance so
// flags and RIVER_* variables never leak between invocations
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("river")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "river",
		Short:         "Run a program under time and memory limits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error, disabled)")
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newRunCmd(v))
	return root
}

func newLogger(v *viper.Viper) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}
