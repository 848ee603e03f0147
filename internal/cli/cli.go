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

// Package cli defines a lightweight framework for building CLI commands.
// It's designed to be generic and self-contained, with no embedded business logic
// or dependencies on the surrounding application's configuration or behavior.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/wsrelease/wsrelease/internal/config"
)

// Command represents a single command that can be executed by the application.
type Command struct {
	// Short is a concise one-line description of the command. The first
	// word of Short is the command's name.
	Short string

	// UsageLine is the one line usage.
	UsageLine string

	// Long is the full description of the command.
	Long string

	// Action executes the command once its flags have been parsed. Leaf
	// commands must set this; commands that only group subcommands may
	// leave it nil.
	Action func(ctx context.Context, cmd *Command) error

	// Commands are the sub commands.
	Commands []*Command

	// Flags is the command's flag set for parsing arguments and generating
	// usage messages. This is populated for each command in Init().
	Flags *flag.FlagSet

	// Config contains the configs for the command.
	Config *config.Config
}

// Parse parses the provided command-line arguments using the command's flag
// set.
func (c *Command) Parse(args []string) error {
	return c.Flags.Parse(args)
}

// Run resolves the deepest subcommand named by args, parses whatever is left
// of args as that subcommand's flags, and invokes its Action.
func (c *Command) Run(ctx context.Context, args []string) error {
	cmd, rest, err := lookupCommand(c, args)
	if err != nil {
		return err
	}
	if cmd.Flags != nil {
		if err := cmd.Flags.Parse(rest); err != nil {
			return err
		}
	}
	if cmd.Action == nil {
		return fmt.Errorf("no action defined for command %q", cmd.Name())
	}
	return cmd.Action(ctx, cmd)
}

// lookupCommand walks cmd's subcommand tree following args for as long as
// each argument names a subcommand of the current command, stopping at the
// first argument that looks like a flag (begins with "-") or once the
// current command has no further subcommands. It returns the deepest command
// reached and whatever arguments were not consumed resolving it.
func lookupCommand(cmd *Command, args []string) (*Command, []string, error) {
	for len(args) > 0 && len(cmd.Commands) > 0 {
		next := args[0]
		if strings.HasPrefix(next, "-") {
			break
		}
		sub, err := cmd.Lookup(next)
		if err != nil {
			return nil, nil, err
		}
		cmd = sub
		args = args[1:]
	}
	return cmd, args, nil
}

// Name is the command name. Command.Short is always expected to begin with
// this name.
func (c *Command) Name() string {
	if c.Short == "" {
		panic("command is missing documentation")
	}
	parts := strings.Fields(c.Short)
	return parts[0]
}

// Lookup finds a command by its name, and returns an error if the command is
// not found.
func (c *Command) Lookup(name string) (*Command, error) {
	for _, sub := range c.Commands {
		if sub.Name() == name {
			return sub, nil
		}
	}
	return nil, fmt.Errorf("invalid command: %q", name)
}

func (c *Command) usage(w io.Writer) {
	if c.Short == "" || c.UsageLine == "" || c.Long == "" {
		panic(fmt.Sprintf("command %q is missing documentation", c.Name()))
	}

	fmt.Fprintf(w, "%s\n\nUsage:\n\n  %s\n\n", c.Long, c.UsageLine)
	if len(c.Commands) > 0 {
		fmt.Fprint(w, "Commands:\n\n")
		for _, sub := range c.Commands {
			parts := strings.Fields(sub.Short)
			short := strings.Join(parts[1:], " ")
			fmt.Fprintf(w, "  %-25s  %s\n", sub.Name(), short)
		}
		fmt.Fprint(w, "\n")
	}
	if hasFlags(c.Flags) {
		fmt.Fprint(w, "Flags:\n\n")
		c.Flags.SetOutput(w)
		c.Flags.PrintDefaults()
		fmt.Fprint(w, "\n\n")
	}
}

// Init creates a new set of flags for the command, wires its usage output
// to usage(), and populates Config from the environment.
func (c *Command) Init() *Command {
	c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.Flags.Usage = func() {
		c.usage(c.Flags.Output())
	}
	c.Config = config.New()
	return c
}

func hasFlags(fs *flag.FlagSet) bool {
	visited := false
	fs.VisitAll(func(f *flag.Flag) {
		visited = true
	})
	return visited
}
