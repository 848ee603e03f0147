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

package main

import (
	"context"
	"fmt"

	"github.com/wsrelease/wsrelease/internal/cli"
	"github.com/wsrelease/wsrelease/internal/config"
	"github.com/wsrelease/wsrelease/internal/gitrepo"
	"github.com/wsrelease/wsrelease/internal/orchestrator"
)

var cmdPublish = &cli.Command{
	Short:     "publish [flags] <workspace-root> [package...]",
	UsageLine: "wsrelease publish [flags] <workspace-root> [package...]",
	Long: `publish runs the full workspace publish algorithm: it validates the
selected candidates against the publish-relevant dependency graph, then
publishes each one in dependency order, adjusting and bumping versions,
propagating them to dependents, and (with -for-pull-request) leaving behind
a minimal, review-ready diff instead of every intermediate manifest edit.

Positional arguments after the workspace root are appended to the package
selection made with -publish.`,
}

func init() {
	cmdPublish.Init()
	cmdPublish.Action = runPublish
	addCommonFlags(cmdPublish.Flags)
}

func runPublish(ctx context.Context, cmd *cli.Command) error {
	cfg := cmd.Config
	applyFlags(cfg)
	cfg.CommandName = cmd.Name()

	args := cmd.Flags.Args()
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", cmd.UsageLine)
	}
	cfg.WorkspaceRoot = args[0]
	cfg.PublishOnly = append(cfg.PublishOnly, args[1:]...)

	return runWithConfig(ctx, cfg)
}

// runWithConfig validates cfg, fills in its defaults, opens the workspace's
// git repository, and runs the orchestrator against it. Shared by publish
// and plan, which differ only in how they populate cfg beforehand.
func runWithConfig(ctx context.Context, cfg *config.Config) error {
	if ok, err := cfg.IsValid(); !ok {
		return err
	}
	if err := cfg.SetDefaults(); err != nil {
		return err
	}

	repo, err := gitrepo.Open(ctx, cfg.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("opening workspace repository: %w", err)
	}

	return orchestrator.New(cfg, repo).Run(ctx)
}
