// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command wsrelease publishes a Cargo workspace's crates to a registry in
// dependency order, adjusting and bumping versions as it goes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/wsrelease/wsrelease/internal/cli"
)

var rootCmd = &cli.Command{
	Short:     "wsrelease publishes a workspace's packages in dependency order",
	UsageLine: "wsrelease <command> [flags] <workspace-root> [package...]",
	Long: `wsrelease walks a workspace's publish-relevant dependency graph, selects
the packages that need publishing, and publishes them to a registry one at a
time: adjusting each package's version against the registry's published
history, bumping it according to the change it carries, propagating the new
version to everything that depends on it, and publishing in dependency order.`,
	Commands: []*cli.Command{cmdPlan, cmdPublish},
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("WSRELEASE_VERBOSE") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) == 2 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Println(cli.Version())
		return
	}

	rootCmd.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
