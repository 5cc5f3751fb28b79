// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/go-padmux/internal/script"
)

var runCmd = &cobra.Command{
	Use:   "run SCRIPT",
	Short: "Run a script of claim commands against the board",
	Long: `Run a script of claim commands against the pad configurations of the
board.  A SCRIPT of - reads the script from stdin.

Commands:
  claim CONFIG DEVICE
  release CONFIG
  switch OLD|- NEW DEVICE
  owner LABEL
  owners
  expect-owner LABEL DEVICE|-
  expect-fail COMMAND...`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().Bool("activate", false, "claim the board's active bindings first")
	rootCmd.AddCommand(runCmd)
}

func runScript(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "open script")
		}
		defer f.Close()
		in = f
	}
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Close()
	if activate, _ := cmd.Flags().GetBool("activate"); activate {
		if err := sys.Activate(); err != nil {
			return err
		}
	}
	r := script.New(sys.Pads, sys, cmd.OutOrStdout(), script.WithLogger(logger.Logger))
	return r.Run(cmd.Context(), in)
}
