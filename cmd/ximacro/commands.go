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
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ximacro/internal/book"
	"ximacro/internal/domain"
	"ximacro/internal/export"
	"ximacro/internal/ui"
)

func (c *cli) newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Launch the desktop UI",
		Args:  cobra.NoArgs,
		RunE: c.run(func(_ context.Context, _ *cobra.Command, a *app, _ []string) error {
			return ui.Run(ui.Env{
				Workspace:  a.ws,
				Progress:   a.bridge,
				Config:     a.cfg,
				ConfigPath: a.cfgPath,
				CrashDir:   defaultCrashDir(),
			})
		}),
	}
}

func (c *cli) newPathCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "path", Short: "Show or change the game installation directory"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the game installation directory",
			Args:  cobra.NoArgs,
			RunE: c.run(func(_ context.Context, cmd *cobra.Command, a *app, _ []string) error {
				p := a.ws.InstallPath()
				if p == "" {
					return domain.ErrNotConfigured
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <dir>",
			Short: "Set the game installation directory (must contain USER)",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				if err := a.ws.SetInstallPath(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Game directory set to", a.ws.InstallPath())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the game installation directory",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, _ *cobra.Command, a *app, _ []string) error {
				return a.ws.ClearInstallPath(ctx)
			}),
		},
	)
	return cmd
}

func (c *cli) newCharactersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "characters", Aliases: []string{"chars"}, Short: "Manage character aliases"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored characters",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				chars, err := a.ws.Characters(ctx)
				if err != nil {
					return err
				}
				renderCharacters(cmd.OutOrStdout(), chars)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "discover",
			Short: "List game characters (TEMP) and user folders (USER)",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				game, err := a.ws.ListGameCharacters(ctx)
				if err != nil {
					return err
				}
				folders, err := a.ws.ListUserFolders(ctx)
				if err != nil {
					return err
				}
				renderDiscovery(cmd.OutOrStdout(), game, folders)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add <name> <folder>",
			Short: "Add a character alias for a USER folder",
			Args:  cobra.ExactArgs(2),
			RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				if err := a.ws.AddCharacter(ctx, domain.Character{Name: args[0], Folder: args[1]}); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", args[0], args[1])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a character alias; macro files are kept",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(ctx context.Context, _ *cobra.Command, a *app, args []string) error {
				return a.ws.RemoveCharacter(ctx, args[0])
			}),
		},
	)
	return cmd
}

func (c *cli) newBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "books <character>",
		Short: "List the macro books of a character",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			renderBooks(cmd.OutOrStdout(), a.ws.Books(), a.ws.BookName)
			return nil
		}),
	}
}

func (c *cli) newMacrosCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "macros", Short: "Dump, export, import and print macros"}

	dump := &cobra.Command{
		Use:   "dump <character>",
		Short: "Print macros as a table or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			bookNo, _ := cmd.Flags().GetInt("book")
			asJSON, _ := cmd.Flags().GetBool("json")
			var items []domain.MacroItem
			for _, b := range a.ws.Books() {
				if bookNo == 0 || b.Number() == bookNo {
					items = append(items, b.Items...)
				}
			}
			if asJSON {
				data, err := domain.EncodeMacroItems(items)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			renderMacros(cmd.OutOrStdout(), items)
			return nil
		}),
	}
	dump.Flags().Int("book", 0, "only this book (1-based)")
	dump.Flags().Bool("json", false, "print the collection as JSON")

	exp := &cobra.Command{
		Use:   "export <character> [file]",
		Short: "Export all macros to a .json or .json.lz4 archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			out := export.DefaultFileName
			if len(args) == 2 {
				out = args[1]
			}
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			if err := a.ws.Export(out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pages to %s\n", len(a.ws.Session().Items()), out)
			return nil
		}),
	}

	imp := &cobra.Command{
		Use:   "import <character> <file>",
		Short: "Overwrite all macros of a character with an archive",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			items, err := a.ws.PreviewImport(args[1])
			if err != nil {
				return err
			}
			renderBooks(cmd.OutOrStdout(), book.Bucket(items), a.ws.BookName)
			if err := confirmed(cmd, fmt.Sprintf("this overwrites every macro of %s with %d pages", args[0], len(items))); err != nil {
				return err
			}
			out, err := a.ws.Import(ctx, args[1])
			if err != nil {
				return err
			}
			printOutput(cmd, out)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d pages\n", len(items))
			return nil
		}),
	}
	imp.Flags().Bool("yes", false, "write without asking")

	pdf := &cobra.Command{
		Use:   "pdf <character> <book> <out.pdf>",
		Short: "Write a printable sheet of one book",
		Args:  cobra.ExactArgs(3),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("%w: book must be a positive number", domain.ErrValidation)
			}
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			compact, _ := cmd.Flags().GetBool("compact")
			f, err := os.Create(args[2])
			if err != nil {
				return err
			}
			if err := a.ws.WriteBookSheet(f, n-1, compact); err != nil {
				_ = f.Close()
				_ = os.Remove(args[2])
				return err
			}
			return f.Close()
		}),
	}
	pdf.Flags().Bool("compact", false, "names only, no macro lines")

	search := &cobra.Command{
		Use:   "search <character> <text>...",
		Short: "Find macros whose name or lines contain every term",
		Args:  cobra.MinimumNArgs(2),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			hits, err := a.ws.Search(ctx, strings.Join(args[1:], " "), limit)
			if err != nil {
				return err
			}
			renderHits(cmd.OutOrStdout(), hits)
			return nil
		}),
	}
	search.Flags().Int("limit", 50, "maximum rows")

	cmd.AddCommand(dump, exp, imp, pdf, search)
	return cmd
}

func (c *cli) newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "snapshots", Short: "List and restore pre-save snapshots"}
	list := &cobra.Command{
		Use:   "list <character>",
		Short: "List snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if _, err := a.ws.SelectCharacter(ctx, args[0]); err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			snaps, err := a.ws.Snapshots(ctx, limit)
			if err != nil {
				return err
			}
			renderSnapshots(cmd.OutOrStdout(), snaps)
			return nil
		}),
	}
	list.Flags().Int("limit", 20, "maximum rows")

	restore := &cobra.Command{
		Use:   "restore <character> <id>",
		Short: "Write a snapshot back over the character's macros",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if err := confirmed(cmd, "this overwrites every macro of "+args[0]); err != nil {
				return err
			}
			if _, err := a.character(ctx, args[0]); err != nil {
				return err
			}
			out, err := a.ws.RestoreSnapshot(ctx, args[1])
			if err != nil {
				return err
			}
			printOutput(cmd, out)
			return nil
		}),
	}
	restore.Flags().Bool("yes", false, "write without asking")
	cmd.AddCommand(list, restore)
	return cmd
}

func (c *cli) newBackupsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "backups", Short: "Remote PostgreSQL backups (backup.remote_enabled)"}
	list := &cobra.Command{
		Use:   "list <character>",
		Short: "List remote backups of a character",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if a.mirror == nil {
				return fmt.Errorf("remote backup is not configured")
			}
			ch, err := a.ws.SelectCharacter(ctx, args[0])
			if err != nil {
				return err
			}
			backups, err := a.mirror.List(ctx, ch.Folder, 20)
			if err != nil {
				return err
			}
			renderBackups(cmd.OutOrStdout(), backups)
			return nil
		}),
	}
	restore := &cobra.Command{
		Use:   "restore <character>",
		Short: "Write the newest remote backup over the character's macros",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if a.mirror == nil {
				return fmt.Errorf("remote backup is not configured")
			}
			if err := confirmed(cmd, "this overwrites every macro of "+args[0]); err != nil {
				return err
			}
			ch, err := a.character(ctx, args[0])
			if err != nil {
				return err
			}
			_, items, err := a.mirror.Latest(ctx, ch.Folder)
			if err != nil {
				return err
			}
			out, err := a.ws.RestoreItems(ctx, items, "mirror")
			if err != nil {
				return err
			}
			printOutput(cmd, out)
			return nil
		}),
	}
	restore.Flags().Bool("yes", false, "write without asking")
	cmd.AddCommand(list, restore)
	return cmd
}

func (c *cli) newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the game directory and all characters",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if err := confirmed(cmd, "this removes the stored game directory and every character"); err != nil {
				return err
			}
			return a.ws.Reset(ctx)
		}),
	}
	cmd.Flags().Bool("yes", false, "do not ask")
	return cmd
}

func printOutput(cmd *cobra.Command, out string) {
	if out != "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
	}
}
