// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warthog618/go-padmux/internal/board"
	"github.com/warthog618/go-padmux/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "padctl",
	Short: "Pad configuration arbitration tool",
	Long: `padctl loads a board description and arbitrates the claiming of its pad
configurations, and the sysconf registers and GPIO lines they require,
on behalf of devices.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return openLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

// the logger shared by all commands, opened before any command runs.
var logger *logging.Logger

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "padctl config file")
	pf.StringP("board", "b", "", "board file")
	pf.String("log-level", logging.LevelWarn,
		fmt.Sprintf("log level (%s)", strings.Join(logging.ValidLevels(), ", ")))
	pf.String("log-file", "", "log file (default is stderr)")
	pf.String("log-format", logging.FormatText, "log format (text, json)")
	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("board", pf.Lookup("board"))
	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.file", pf.Lookup("log-file"))
	_ = viper.BindPFlag("log.format", pf.Lookup("log-format"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("padctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.config/padctl")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PADCTL")
	// e.g. PADCTL_LOG_LEVEL for log.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// the config file is optional
	_ = viper.ReadInConfig()
}

func openLogger() error {
	l, err := logging.NewLogger(
		viper.GetString("log.file"),
		viper.GetString("log.level"),
		viper.GetString("log.format"))
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// boardPath returns the path of the board file, which must be provided.
func boardPath() (string, error) {
	path := viper.GetString("board")
	if len(path) == 0 {
		return "", errors.New("no board file specified")
	}
	return path, nil
}

// openSystem loads the board file and brings up its subsystems.
func openSystem() (*board.System, error) {
	path, err := boardPath()
	if err != nil {
		return nil, err
	}
	b, err := board.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded board", "path", path, "name", b.Name)
	return b.Open(logger.Logger)
}
