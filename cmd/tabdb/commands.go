package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hatlonely/tabdb/codec"
	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEnumCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enum",
		Short: "Manage enum definitions",
	}

	cmd.AddCommand(
		mutates(&cobra.Command{
			Use:   "define NAME VALUE...",
			Short: "Define or replace an enum",
			Example: `  tabdb enum define status active inactive`,
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				enum, err := a.db.DefineEnum(cmd.Context(), args[0], args[1:])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enum %s defined with %d values\n", enum.Name, len(enum.Values))
				return nil
			},
		}),
		&cobra.Command{
			Use:   "list",
			Short: "List enum definitions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				renderEnums(cmd.OutOrStdout(), a.db.EnumDefinitions())
				return nil
			},
		},
		mutates(&cobra.Command{
			Use:   "drop NAME",
			Short: "Drop an enum that no field references",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.db.DropEnum(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enum %s dropped\n", args[0])
				return nil
			},
		}),
	)
	return cmd
}

func newTableCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
	}

	cmd.AddCommand(
		mutates(&cobra.Command{
			Use:   "create NAME FIELD...",
			Short: "Create a table, fields are name:type or name:enum:<enum>",
			Example: `  tabdb table create employees name:string age:integer email:email status:enum:status`,
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				def := &schema.TableDefinition{Name: args[0]}
				for _, spec := range args[1:] {
					field, err := parseFieldSpec(spec)
					if err != nil {
						return err
					}
					def.Fields = append(def.Fields, field)
				}
				if err := a.db.CreateTable(cmd.Context(), def); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "table %s created\n", def.Name)
				return nil
			},
		}),
		&cobra.Command{
			Use:   "list",
			Short: "List tables and their fields",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				renderTables(cmd.OutOrStdout(), a.db.Tables())
				return nil
			},
		},
		mutates(&cobra.Command{
			Use:   "drop NAME",
			Short: "Drop a table and its rows",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.db.DropTable(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "table %s dropped\n", args[0])
				return nil
			},
		}),
		&cobra.Command{
			Use:   "check NAME",
			Short: "Check that every field has a valid type and every enum field references a defined enum",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !a.db.ValidateTableStructure(args[0]) {
					return schema.InvalidArgumentf("table %s has an invalid structure", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "table %s is valid\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newRowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "row",
		Short: "Add, list, update and delete rows",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "add TABLE FIELD=VALUE...",
			Short:   "Validate and insert a row",
			Example: `  tabdb row add employees name="John Doe" age=30 email=john@example.com status=active`,
			Args:    cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := parseValues(args[1:])
				if err != nil {
					return err
				}
				id, err := a.db.AddRow(cmd.Context(), args[0], values)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "row %d added to %s\n", id, args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list TABLE",
			Short: "List all rows ordered by id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				def, ok := a.db.Registry().LookupTable(args[0])
				if !ok {
					return schema.InvalidArgumentf("unknown table %q", args[0])
				}
				renderRows(cmd.OutOrStdout(), def, a.db.GetRows(cmd.Context(), args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "get TABLE ID",
			Short: "Show one row",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				row, err := a.db.GetRowByID(cmd.Context(), args[0], id)
				if err != nil {
					return err
				}
				if row == nil {
					return schema.InvalidArgumentf("row %d not found in %s", id, args[0])
				}
				def, _ := a.db.Registry().LookupTable(args[0])
				renderRows(cmd.OutOrStdout(), def, []schema.Row{*row})
				return nil
			},
		},
		&cobra.Command{
			Use:   "update TABLE ID FIELD=VALUE...",
			Short: "Validate and overwrite the given fields of a row",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				values, err := parseValues(args[2:])
				if err != nil {
					return err
				}
				ok, err := a.db.UpdateRow(cmd.Context(), args[0], id, values)
				if err != nil {
					return err
				}
				if !ok {
					return schema.InvalidArgumentf("row %d not found in %s", id, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "row %d updated\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete TABLE ID",
			Short: "Delete a row",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				ok, err := a.db.DeleteRow(cmd.Context(), args[0], id)
				if err != nil {
					return err
				}
				if !ok {
					return schema.InvalidArgumentf("row %d not found in %s", id, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "row %d deleted\n", id)
				return nil
			},
		},
	)
	return cmd
}

func newIntersectCmd(a *app) *cobra.Command {
	return mutates(&cobra.Command{
		Use:   "intersect TABLE1 TABLE2 FIELD...",
		Short: "Write the distinct rows of TABLE1 that match TABLE2 on FIELDs into intersect_<TABLE1>_<TABLE2>",
		Long: `Rows of TABLE1 and TABLE2 match when every FIELD has the same value in both.
Each distinct combination of FIELD values is written once. Field types are taken
from TABLE1. The result table is dropped and recreated on every run.`,
		Example: `  tabdb intersect employees contractors dept`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := a.db.IntersectTables(cmd.Context(), args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			def, _ := a.db.Registry().LookupTable(name)
			rows := a.db.GetRows(cmd.Context(), name)
			fmt.Fprintf(cmd.OutOrStdout(), "table %s created with %d rows\n", name, len(rows))
			renderRows(cmd.OutOrStdout(), def, rows)
			return nil
		},
	})
}

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export, import and snapshot the schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "save PATH",
			Short: "Write the schema to PATH (.json, .yaml, .msgpack)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.db.SaveToDisk(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema saved to %s\n", args[0])
				return nil
			},
		},
		mutates(&cobra.Command{
			Use:   "load PATH",
			Short: "Replace the schema with the one in PATH and create its tables",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.db.LoadFromDisk(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema loaded from %s\n", args[0])
				return nil
			},
		}),
		&cobra.Command{
			Use:   "push",
			Short: "Save the schema to the configured snapshot store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := a.snapshotStore()
				if err != nil {
					return err
				}
				defer s.Close()
				if err := a.db.SaveSnapshot(cmd.Context(), s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s saved\n", a.db.Name())
				return nil
			},
		},
		mutates(&cobra.Command{
			Use:   "pull [NAME]",
			Short: "Replace the schema with a snapshot, NAME defaults to the database name",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.snapshotStore()
				if err != nil {
					return err
				}
				defer s.Close()
				name := a.db.Name()
				if len(args) == 1 {
					name = args[0]
				}
				if err := a.db.LoadSnapshot(cmd.Context(), s, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s loaded\n", name)
				return nil
			},
		}),
		&cobra.Command{
			Use:   "snapshots",
			Short: "List snapshots in the configured snapshot store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := a.snapshotStore()
				if err != nil {
					return err
				}
				defer s.Close()
				names, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			},
		},
		newSchemaWatchCmd(a),
	)
	return cmd
}

func newSchemaWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload the schema file on every change and create its tables, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := a.config.Schema
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return errors.Wrapf(err, "create directory %s failed", filepath.Dir(path))
			}
			w, err := codec.NewFileWatcherWithOptions(&codec.FileWatcherOptions{Path: path, Logger: a.config.Database.Logger})
			if err != nil {
				return err
			}

			// 通知合并，监听协程不直接修改数据库
			changes := make(chan struct{}, 1)
			if err := w.OnChange(func() error {
				select {
				case changes <- struct{}{}:
				default:
				}
				return nil
			}); err != nil {
				return err
			}
			defer w.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", path)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changes:
					if _, err := os.Stat(path); err != nil {
						continue
					}
					if err := a.db.LoadFromDisk(ctx, path); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "schema reloaded: %d tables, %d enums\n", len(a.db.Tables()), len(a.db.EnumDefinitions()))
				}
			}
		},
	}
}
