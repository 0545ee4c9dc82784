// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command orc is a link-time diagnostic that detects One Definition
// Rule violations across Mach-O object files and static archives.
package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/odrcheck/orc/orc"
)

// fileConfig mirrors the optional .orc-config TOML file.
type fileConfig struct {
	ParallelProcessing *bool    `toml:"parallel_processing"`
	GracefulExit       *bool    `toml:"graceful_exit"`
	ShowProgress       *bool    `toml:"show_progress"`
	ViolationReport    []string `toml:"violation_report"`
	ViolationIgnore    []string `toml:"violation_ignore"`
	Output             string   `toml:"output"`
}

var (
	flagConfig   string
	flagSerial   bool
	flagGraceful bool
	flagProgress bool
	flagOutput   string
)

var rootCmd = &cobra.Command{
	Use:          "orc <input files>",
	Short:        "Detect One Definition Rule violations across Mach-O objects and archives",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if flagSerial {
			orc.Config.Parallel = false
		}
		if flagGraceful {
			orc.Config.GracefulExit = true
		}
		if flagProgress {
			orc.Config.ShowProgress = true
		}

		out := cmd.OutOrStdout()
		if flagOutput != "" {
			f, err := os.Create(flagOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		stopProgress := startProgress()
		reports := orc.Process(args)
		stopProgress()

		shown := 0
		for i := range reports {
			if !orc.FilterReport(&reports[i]) {
				continue
			}
			fmt.Fprint(out, reports[i].String())
			shown++
		}
		fmt.Fprintf(out, "%d violation(s) found\n", shown)

		if (shown > 0 || orc.Globals.FatalErrorCount.Load() > 0) && !orc.Config.GracefulExit {
			os.Exit(1)
		}
		return nil
	},
}

// loadConfig merges the TOML file, when present, into the defaults.
// Flags override it afterwards.
func loadConfig() error {
	path := flagConfig
	if path == "" {
		if _, err := os.Stat(".orc-config"); err == nil {
			path = ".orc-config"
		} else {
			return nil
		}
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}

	if fc.ParallelProcessing != nil {
		orc.Config.Parallel = *fc.ParallelProcessing
	}
	if fc.GracefulExit != nil {
		orc.Config.GracefulExit = *fc.GracefulExit
	}
	if fc.ShowProgress != nil {
		orc.Config.ShowProgress = *fc.ShowProgress
	}
	sort.Strings(fc.ViolationReport)
	sort.Strings(fc.ViolationIgnore)
	orc.Config.ViolationReport = fc.ViolationReport
	orc.Config.ViolationIgnore = fc.ViolationIgnore
	if flagOutput == "" {
		flagOutput = fc.Output
	}
	return nil
}

// startProgress overprints DIE counts on stderr until the returned stop
// function runs.
func startProgress() func() {
	if !orc.Config.ShowProgress {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				fmt.Fprintln(os.Stderr)
				return
			case <-tick.C:
				analyzed := orc.Globals.DieAnalyzedCount.Load()
				processed := orc.Globals.DieProcessedCount.Load()
				pct := uint64(0)
				if processed > 0 {
					pct = analyzed * 100 / processed
				}
				fmt.Fprintf(os.Stderr, "\r%d/%d  %d%%; %d violation(s) found          ",
					analyzed, processed, pct, orc.Globals.ODRVCount.Load())
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "TOML configuration file (defaults to ./.orc-config when present)")
	rootCmd.Flags().BoolVar(&flagSerial, "serial", false, "Process inputs on a single thread")
	rootCmd.Flags().BoolVar(&flagGraceful, "graceful-exit", false, "Exit 0 even when violations are found")
	rootCmd.Flags().BoolVar(&flagProgress, "progress", false, "Print progress while processing")
	rootCmd.Flags().StringVar(&flagOutput, "output", "", "Write the report to a file instead of stdout")
}

func main() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
