// SPDX-FileCopyrightText: 2023 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/warthog618/go-padmux"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the pad configurations of a board can be claimed together",
	Long: `Claim every pad configuration of the board, each on behalf of a device
named after the configuration, and report those that conflict.

The resulting ownership of all claimed resources is printed as a table.
With --race the configurations are claimed concurrently, so which of a
conflicting pair wins is not determined.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("race", false, "claim configurations concurrently")
	checkCmd.Flags().Bool("activate", false, "claim the board's active bindings first")
	rootCmd.AddCommand(checkCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func runCheck(cmd *cobra.Command, args []string) error {
	race, _ := cmd.Flags().GetBool("race")
	activate, _ := cmd.Flags().GetBool("activate")
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Close()
	if activate {
		if err := sys.Activate(); err != nil {
			return err
		}
	}
	var configs []*padmux.Config
	for _, c := range sys.Configs() {
		if _, ok := c.Owner(); !ok {
			configs = append(configs, c)
		}
	}

	var mu sync.Mutex
	var claimed []*padmux.Config
	failed := make(map[string]error)
	claim := func(c *padmux.Config) error {
		err := sys.Pads.Claim(c, c.Name)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed[c.Name] = err
			return errors.Wrapf(err, "claim %s", c.Name)
		}
		claimed = append(claimed, c)
		return nil
	}
	if race {
		p := pool.New().WithErrors()
		for _, c := range configs {
			c := c
			p.Go(func() error { return claim(c) })
		}
		// failures are reported per config below
		_ = p.Wait()
	} else {
		for _, c := range configs {
			_ = claim(c)
		}
	}

	out := cmd.OutOrStdout()
	printOwners(out, sys.Pads.Registry().Snapshot())
	for _, c := range configs {
		if err, ok := failed[c.Name]; ok {
			fmt.Fprintln(out, failStyle.Render(fmt.Sprintf("%s: %v", c.Name, err)))
		}
	}
	for i := len(claimed) - 1; i >= 0; i-- {
		if err := sys.Pads.Release(claimed[i]); err != nil {
			logger.Error("release", "config", claimed[i].Name, "error", err)
		}
	}
	if len(failed) != 0 {
		return errors.Errorf("%d of %d configs conflict", len(failed), len(configs))
	}
	return nil
}

func printOwners(w io.Writer, claims []padmux.Claim) {
	rows := make([][]string, 0, len(claims))
	for _, c := range claims {
		rows = append(rows, []string{c.Resource.Kind.String(), c.Resource.ID, c.Owner})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("KIND", "RESOURCE", "OWNER").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
