// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set by the linker
var version = "undefined"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "padctl %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
