// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warthog618/go-padmux/internal/board"
)

var expandCmd = &cobra.Command{
	Use:   "expand PREFIX",
	Short: "Print the canonical names of the pads described by a label",
	Long: `Print the canonical names of the pads described by a label.

Without a suffix flag the prefix is taken as a complete pad name.`,
	Example: `  padctl expand PIO3 --range 5,7
  padctl expand PIO2 --strings SCK,MISO,MOSI`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

func init() {
	f := expandCmd.Flags()
	f.Int("number", 0, "single numbered pad")
	f.IntSlice("range", nil, "inclusive range of numbered pads, as FROM,TO")
	f.IntSlice("list", nil, "list of numbered pads")
	f.StringSlice("strings", nil, "list of named pads")
	expandCmd.MarkFlagsMutuallyExclusive("number", "range", "list", "strings")
	rootCmd.AddCommand(expandCmd)
}

func runExpand(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	ls := board.LabelSpec{Prefix: args[0]}
	if f.Changed("number") {
		n, _ := f.GetInt("number")
		ls.Number = &n
	}
	if f.Changed("range") {
		ls.Range, _ = f.GetIntSlice("range")
	}
	if f.Changed("list") {
		ls.List, _ = f.GetIntSlice("list")
	}
	if f.Changed("strings") {
		ls.Strings, _ = f.GetStringSlice("strings")
	}
	l, err := ls.ToLabel()
	if err != nil {
		return err
	}
	pads, err := l.Expand()
	if err != nil {
		return err
	}
	logger.Debug("expanded", "label", l.String(), "pads", len(pads))
	for _, p := range pads {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
