// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlux/services/devicetree"
	"github.com/AleutianAI/AleutianFlux/services/energy/handlers"
)

// errInvalidTree makes validate exit non-zero without printing usage.
var errInvalidTree = errors.New("tree is structurally invalid")

func newAnalyzeCmd() *cobra.Command {
	var asTable bool
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Normalize a saved tree and print its energy flow",
		Long: `Reads a tree in JSON ("-" for stdin), recomputes union totals, adds
verification nodes and prints the result with its flux edges. With
--table only the Sankey edges are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := readTree(cmd, args[0])
			if err != nil {
				return err
			}
			resp := handlers.Analyze(tree)
			if asTable {
				return printFlux(cmd.OutOrStdout(), resp.Flux)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().BoolVar(&asTable, "table", false, "print flux edges as a table")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check that every union node of a tree has children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := readTree(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := devicetree.Check(tree); err != nil {
				fmt.Fprintln(out, err)
				return errInvalidTree
			}
			stats := devicetree.Stats(tree)
			fmt.Fprintf(out, "ok: %d nodes, %d devices, %d unions, %d verification\n",
				stats.Nodes, stats.Devices, stats.Unions, stats.Diffs)
			return nil
		},
	}
}

func readTree(cmd *cobra.Command, path string) (devicetree.Forest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	tree, err := devicetree.ParseForest(data)
	if err != nil {
		return nil, fmt.Errorf("parse tree %s: %w", path, err)
	}
	return tree, nil
}

func printFlux(w io.Writer, edges []devicetree.FluxEdge) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tKWH")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\n", e.From, e.To, e.Weight)
	}
	return tw.Flush()
}
