// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// swb-open asks the running browser-switchboard to open an address.
//
//	swb-open [--new-window] [--microb] [URI]
//
// With no URI the browser is brought to the front. --microb sends the
// request to the stock browser whatever the configured default, and
// --list-browsers prints the browsers the switchboard knows about.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/switchboard/lib/bus"
	"github.com/bureau-foundation/switchboard/lib/config"
	"github.com/bureau-foundation/switchboard/lib/logging"
	"github.com/bureau-foundation/switchboard/lib/process"
	"github.com/bureau-foundation/switchboard/lib/strategy"
	"github.com/bureau-foundation/switchboard/lib/version"
)

// requestTarget is where the switchboard accepts requests.
var requestTarget = bus.Address{
	Service:   strategy.Identity,
	Path:      "/com/nokia/osso_browser/request",
	Interface: strategy.Identity,
}

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		newWindow    bool
		microb       bool
		listBrowsers bool
		showVersion  bool
		timeout      time.Duration
	)

	flagSet := pflag.NewFlagSet("swb-open", pflag.ContinueOnError)
	flagSet.BoolVarP(&newWindow, "new-window", "n", false, "open the address in a new window")
	flagSet.BoolVar(&microb, "microb", false, "use the stock browser regardless of the configured default")
	flagSet.BoolVar(&listBrowsers, "list-browsers", false, "list known browsers and exit")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the switchboard")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println(version.Line("swb-open"))
		return nil
	}
	if flagSet.NArg() > 1 {
		return fmt.Errorf("expected at most one URI, got %d arguments", flagSet.NArg())
	}

	if listBrowsers {
		home := config.Home()
		cfg, err := config.Load(home)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		registry := strategy.NewRegistry(strategy.KnownBrowsers(home), nil, nil)
		return printBrowsers(os.Stdout, registry, cfg.DefaultBrowser, executableExists)
	}

	logger, err := logging.New(logging.Options{Target: "stdout"})
	if err != nil {
		return err
	}

	method, args := requestFor(flagSet.Arg(0), newWindow, microb)
	conn, err := bus.ConnectSession(logger.Logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := conn.Call(ctx, requestTarget, method, args...); err != nil {
		return err
	}
	logger.Debug("request sent", "method", method, "args", args)
	return nil
}

// requestFor chooses the switchboard method for the command line. A
// relative path to an existing file is made absolute; the switchboard
// turns absolute paths into file:// URIs.
func requestFor(address string, newWindow, microb bool) (string, []any) {
	if address != "" && !strings.Contains(address, ":") && !filepath.IsAbs(address) {
		if _, err := os.Stat(address); err == nil {
			if absolute, err := filepath.Abs(address); err == nil {
				address = absolute
			}
		}
	}

	switch {
	case microb:
		return "switchboard_launch_microb", []any{address}
	case address == "" && !newWindow:
		return "top_application", nil
	case newWindow:
		return "open_new_window", []any{address}
	default:
		return "load_url", []any{address}
	}
}

func printBrowsers(w io.Writer, registry *strategy.Registry, configured string, installed func(string) bool) error {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tNAME\tSTATUS")
	for _, browser := range registry.Browsers() {
		var status []string
		if browser.ID == configured {
			status = append(status, "configured")
		}
		if browser.Binary != "" && !installed(browser.Binary) {
			status = append(status, "not installed")
		}
		fmt.Fprintf(table, "%s\t%s\t%s\n", browser.ID, browser.DisplayName, strings.Join(status, ", "))
	}
	return table.Flush()
}

func executableExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}
