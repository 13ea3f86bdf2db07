// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// cryptol-client is a command-line front end for the Cryptol server. It
// loads one module (the prelude by default), runs the expressions given
// with --eval, and otherwise reads commands from standard input.
//
// Ctrl-C interrupts the query in progress without ending the session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/luxfi/cryptol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		address    string
		port       int
		codec      string
		launch     bool
		executable string
		prover     string
		logLevel   string
		evals      []string
	)

	flagSet := pflag.NewFlagSet("cryptol-client", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default $"+cryptol.ConfigEnv+")")
	flagSet.StringVar(&address, "address", "", "server address, e.g. tcp://127.0.0.1")
	flagSet.IntVarP(&port, "port", "p", 0, "server control port")
	flagSet.StringVar(&codec, "codec", "", "message codec: json or cbor")
	flagSet.BoolVar(&launch, "launch", false, "start the server and stop it on exit")
	flagSet.StringVar(&executable, "server", "", "server executable for --launch")
	flagSet.StringVar(&prover, "prover", "", "default prover for :prove and :sat")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringArrayVarP(&evals, "eval", "e", nil, "evaluate an expression and exit (repeatable)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	args := flagSet.Args()
	if len(args) > 1 {
		return fmt.Errorf("unexpected argument: %s", args[1])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Address = address
	}
	if port != 0 {
		cfg.ControlPort = port
	}
	if codec != "" {
		cfg.Codec = codec
	}
	if launch {
		cfg.Launch.Enabled = true
	}
	if executable != "" {
		cfg.Launch.Executable = executable
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger := newLogger(level)

	var defaultProver cryptol.Prover
	if prover != "" {
		if defaultProver, err = cryptol.ParseProver(prover); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	session, err := cryptol.Connect(ctx, cfg.Address, append(cfg.Options(), cryptol.WithLogger(logger))...)
	if err != nil {
		return err
	}
	defer session.Exit()

	var module *cryptol.Module
	if len(args) == 1 {
		module, err = session.LoadModule(ctx, args[0])
	} else {
		module, err = session.Prelude(ctx)
	}
	if err != nil {
		return err
	}
	if defaultProver != "" {
		module.SetProver(defaultProver)
	}

	r := &repl{
		ctx:    ctx,
		module: module,
		out:    os.Stdout,
		logger: logger,
	}
	r.watchInterrupts()
	defer r.stopWatching()

	if len(evals) > 0 {
		for _, expr := range evals {
			if err := r.execute(expr); err != nil {
				return err
			}
		}
		return nil
	}
	return r.loop(os.Stdin, term.IsTerminal(int(os.Stdin.Fd())))
}

func loadConfig(path string) (*cryptol.Config, error) {
	if path == "" {
		path = os.Getenv(cryptol.ConfigEnv)
	}
	if path == "" {
		return cryptol.DefaultConfig(), nil
	}
	return cryptol.LoadConfig(path)
}

// newLogger writes text logs to a terminal and JSON logs otherwise.
func newLogger(level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `cryptol-client: query a Cryptol server.

Usage: cryptol-client [flags] [MODULE.cry]

Without --eval, commands are read from standard input:

  EXPR                evaluate
  :t EXPR             print the type
  :check EXPR         random testing
  :exhaust EXPR       exhaustive testing
  :prove EXPR         prove with the default prover
  :sat EXPR           find one satisfying assignment
  :allsat EXPR        find every satisfying assignment
  :browse             list declarations
  :set KEY=VALUE      set a server option
  :quit               exit

Flags:
`)
	flagSet.PrintDefaults()
}
