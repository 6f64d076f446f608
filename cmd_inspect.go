package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/game"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <save>",
		Short: "Summarise a save file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := game.Inspect(bufio.NewReader(f))
			if err != nil {
				return fmt.Errorf("inspecting %s: %w", args[0], err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "name:        %s\n", info.Name)
			fmt.Fprintf(w, "tick:        %d\n", info.Tick)
			fmt.Fprintf(w, "cells:       %d\n", info.Cells)
			fmt.Fprintf(w, "total cells: %d\n", info.TotalCells)
			fmt.Fprintf(w, "waste:       %d\n", info.Waste)
			fmt.Fprintln(w, "options:")

			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(info.Options)
		},
	}
}

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			data, err := cfg.Dump()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
