// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/scenesync/lib/config"
	"github.com/bureau-foundation/scenesync/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		scenarioPath string
		configPath   string
		logLevel     string
		color        string
	)

	flagSet := pflag.NewFlagSet("scenesync-sim", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&scenarioPath, "scenario", "", "path to the YAML scenario to replay (required)")
	flagSet.StringVar(&configPath, "config", "", "path to a client config file (default: $"+config.EnvVar+" if set)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flagSet.StringVar(&color, "color", "auto", "colour the output: auto, always or never")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other binaries.
	if len(args) > 0 && args[0] == "--version" {
		version.Print(stdout, "scenesync-sim")
		return nil
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, stderr)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if scenarioPath == "" {
		return errors.New("--scenario is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	colored, err := useColor(color, stdout)
	if err != nil {
		return err
	}

	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	scenario, err := LoadScenario(scenarioPath)
	if err != nil {
		return err
	}

	runner := NewRunner(scenario, settings, logger)
	defer runner.Close()
	if err := runner.Run(); err != nil {
		return err
	}

	renderer := NewTreeRenderer(stdout, colored)
	var out strings.Builder
	for i, client := range runner.Clients() {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(renderer.Render(client))
	}
	_, err = io.WriteString(stdout, out.String())
	return err
}

func loadSettings(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// useColor resolves --color. auto colours only when stdout is a terminal.
func useColor(mode string, stdout io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		file, ok := stdout.(*os.File)
		return ok && term.IsTerminal(int(file.Fd())), nil
	default:
		return false, fmt.Errorf("--color: unknown mode %q (want auto, always or never)", mode)
	}
}

func printHelp(flagSet *pflag.FlagSet, stderr io.Writer) {
	fmt.Fprintf(stderr, `scenesync-sim replays a scripted editing session across headless editors
sharing one in-process server, then prints every editor's scene tree.

Usage:
  scenesync-sim --scenario FILE [flags]

Examples:
  # Replay a scenario and compare the replicas
  scenesync-sim --scenario testdata/crates.yaml

  # Trace every frame with a custom config
  scenesync-sim --scenario crates.yaml --config scenesync.yaml --log-level debug

Flags:
`)
	flagSet.PrintDefaults()
}
