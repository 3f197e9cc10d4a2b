// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the slynkserve backend and its CLI [DBG] console.

Note: This is a BETA release. APIs and functionality may rapidly change.

slynkserve starts (or attaches to) a Common Lisp runtime running a Slynk
server, speaks the Slynk wire protocol to it, and bridges the session to an
editor over MessagePack on stdin/stdout. It can also run as a line-oriented
console for testing the session without an editor.

# Usage

Start the IPC server with the configured runtime:

	slynkserve

Use a specific runtime and core image, and remember them in the config:

	slynkserve -runtime /usr/local/bin/sbcl -core ~/lisp/dev.core

Attach to a Slynk server that is already listening and open the console:

	slynkserve -runtime "" -address 127.0.0.1:4005 -c

# Configuration

Configuration is a TOML file, created with defaults when missing:

	[slynk]
	address = "127.0.0.1:4005"
	connect_retries = 5
	retry_interval_ms = 500

	[runtime]
	path = "/usr/local/bin/sbcl"
	core = ""
	args = ["--load", "~/.slynk-start.lisp"]
	stop_signal = "REPL~QUIT"

	[server]
	completion_limit = 24
	symbol_cache_size = 32

An empty runtime path means attach mode: no child process is spawned. The
runtime is expected to start a Slynk server on the configured address and
print the stop signal when it exits its REPL.

# IPC Protocol

See package server. Requests are msgpack maps with an id and an op; every
request is acked and Lisp results arrive later as events:

	{"id": "r1", "op": "eval", "form": "(+ 1 2)"}
	{"id": "r1", "status": "ok"}
	{"type": "answer", "kind": "channel-send", "method": "write-values", "data": {...}}

# Command Line Flags

	-version
	    Show current version
	-d  Enable debug logging on stderr
	-c  Run the CLI console instead of the IPC server
	-config string
	    Path to a config file (default [UserConfigDir]/slynkserve/config.toml)
	-runtime string
	    Lisp runtime to spawn, saved to the config
	-core string
	    Core image for the runtime, saved to the config
	-address string
	    Slynk server address, saved to the config
	-diagnose
	    Check the configuration and exit
	-rebuild-config
	    Overwrite the default config file with defaults and exit
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/slynkserve/internal/cli"
	"github.com/bastiangx/slynkserve/internal/logger"
	"github.com/bastiangx/slynkserve/pkg/config"
	"github.com/bastiangx/slynkserve/pkg/server"
	"github.com/bastiangx/slynkserve/pkg/session"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.3.0-beta"
	AppName = "slynkserve"
	gh      = "https://github.com/bastiangx/slynkserve"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main loads the config and hands control to the server or the console.
func main() {
	sigHandler()

	showVersion := flag.Bool("version", false, "Show current version")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	configFile := flag.String("config", "", "Path to custom config.toml file")
	runtimePath := flag.String("runtime", "", "Lisp runtime to spawn (empty attaches to a running server)")
	corePath := flag.String("core", "", "Core image passed to the runtime")
	address := flag.String("address", "", "Slynk server address (ip:port)")
	diagnose := flag.Bool("diagnose", false, "Check the configuration and exit")
	rebuild := flag.Bool("rebuild-config", false, "Rebuild the default config file and exit")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger.Setup(*debugMode)

	if *rebuild {
		if err := config.RebuildConfigFile(); err != nil {
			log.Fatalf("Failed to rebuild config: %v", err)
		}
		path, _ := config.GetDefaultConfigPath()
		log.Print("Config rebuilt", "path", path)
		os.Exit(0)
	}

	cfg, configPath, err := config.LoadConfigWithPriority(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if active := config.GetActiveConfigPath(configPath); active != "" {
		log.Debugf("Using config file: (%s)", active)
	} else {
		log.Debug("Using built-in defaults")
	}

	applyOverrides(cfg, configPath, runtimePath, corePath, address)

	if *diagnose {
		printDiagnostics(config.Diagnose(cfg))
		os.Exit(0)
	}

	if *cliMode {
		sess, err := session.New(cfg)
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		console := cli.NewConsole(sess, os.Stdin, os.Stdout)
		if err := console.Start(); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	factory := func(cfg *config.Config) (server.Session, error) {
		return session.New(cfg)
	}
	srv := server.NewServer(cfg, factory, os.Stdin, os.Stdout)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// applyOverrides applies the flags that were given on the command line and
// saves them when a config file is in use.
func applyOverrides(cfg *config.Config, configPath string, runtimePath, corePath, address *string) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var rt, core, addr *string
	if set["runtime"] {
		rt = runtimePath
	}
	if set["core"] {
		core = corePath
	}
	if set["address"] {
		addr = address
	}
	if rt == nil && core == nil && addr == nil {
		return
	}

	if configPath == "" {
		log.Warn("No config file in use, flags apply to this run only")
		cfg.Apply(rt, core, addr)
		return
	}
	if err := cfg.Update(configPath, rt, core, addr); err != nil {
		log.Errorf("Failed to save config: %v", err)
	}
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ slynkserve ] Slynk sessions for your editor")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

func printDiagnostics(d config.Diagnostics) {
	report := func(name string, v config.ValueReport) {
		switch v.Status {
		case config.ValueOk:
			log.Info(name, "status", "ok", "value", v.Value)
		case config.ValueMissing:
			log.Info(name, "status", "not set")
		default:
			log.Error(name, "status", "invalid", "value", v.Value)
		}
	}

	log.SetLevel(log.InfoLevel)
	report("runtime", d.RuntimePath)
	report("core", d.CorePath)
	report("address", d.Address)
	if d.Ok {
		log.Info(AppName + " config looks good")
		return
	}
	log.Error(AppName + " config has problems")
	os.Exit(1)
}
