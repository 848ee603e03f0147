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
)

var cmdPlan = &cli.Command{
	Short:     "plan [flags] <workspace-root> [package...]",
	UsageLine: "wsrelease plan [flags] <workspace-root> [package...]",
	Long: `plan is sugar for "publish -stop-at-step=validation": it resolves the
candidate set, runs it through the same validation the publish command would,
and logs the packages it would publish and in what order, without touching
the registry or the index. The working tree is left alone unless
-set-dependency-version is given: those overrides are written into the
manifests before validation runs.`,
}

func init() {
	cmdPlan.Init()
	cmdPlan.Action = runPlan
	addCommonFlags(cmdPlan.Flags)
}

func runPlan(ctx context.Context, cmd *cli.Command) error {
	cfg := cmd.Config
	applyFlags(cfg)
	cfg.CommandName = cmd.Name()
	cfg.StopAtStep = "validation"

	args := cmd.Flags.Args()
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", cmd.UsageLine)
	}
	cfg.WorkspaceRoot = args[0]
	cfg.PublishOnly = append(cfg.PublishOnly, args[1:]...)

	return runWithConfig(ctx, cfg)
}
