/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ximacro/internal/config"
	applog "ximacro/internal/log"
	"ximacro/internal/telemetry"
	"ximacro/internal/version"
)

// cli holds the state shared by the commands of one invocation.
type cli struct {
	ref     *sessionRef
	cfg     config.AppConfig
	cfgPath string
}

func newRootCmd(ref *sessionRef) *cobra.Command {
	c := &cli{ref: ref}
	root := &cobra.Command{
		Use:   "ximacro",
		Short: "XI Macro Manager - edit Final Fantasy XI macro books",
		Long: `XI Macro Manager reads, edits and writes the macro books of Final Fantasy XI characters.

The macro files are read and written by the bundled ximacro_e, ximacro_i and ximacro_b
programs; this tool manages characters, books, backups and the desktop UI.`,
		Version: version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return c.loadConfig(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newVersionCmd(),
		c.newUICmd(),
		c.newPathCmd(),
		c.newCharactersCmd(),
		c.newBooksCmd(),
		c.newMacrosCmd(),
		c.newSnapshotsCmd(),
		c.newBackupsCmd(),
		c.newResetCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.Load(path, flags)
	if err != nil {
		return err
	}
	c.cfg, c.cfgPath = cfg, path

	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Writer:    cmd.ErrOrStderr(),
	})
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || cfg.Telemetry.OptIn
	if tc.EventsURL == "" {
		tc.EventsURL = cfg.Telemetry.EventsURL
	}
	telemetry.NewDefault(tc)
	return nil
}

// run opens the application for one command and closes it afterwards.
func (c *cli) run(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := openApp(ctx, c.cfg, c.cfgPath, c.ref)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a, args)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ximacro %s\n", version.String())
		},
	}
}

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// confirmed passes when --yes was given or the user answers y on a terminal.
// Without a terminal it returns an error asking for --yes.
func confirmed(cmd *cobra.Command, what string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return nil
	}
	what = strings.TrimSuffix(what, ".")
	if !stdinIsTerminal() {
		return fmt.Errorf("%s; rerun with --yes to proceed", what)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s. Continue? [y/N] ", what)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errAborted
}

var errAborted = errors.New("aborted")
