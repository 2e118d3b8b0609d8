package main

import (
	"os"
	"path/filepath"

	"github.com/hatlonely/tabdb/cfg"
	"github.com/hatlonely/tabdb/db"
	"github.com/hatlonely/tabdb/ref"
	"github.com/hatlonely/tabdb/snapshot"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// envPrefix TABDB_DATABASE_STORE_DRIVER=mysql 覆盖 database.store.driver
const envPrefix = "TABDB"

// 修改模式的命令执行成功后自动保存模式文件
const annotationMutates = "mutates"

type Config struct {
	Database db.Options `cfg:"database"`
	// 模式文件路径，为空时为 <store.directory>/<name>.schema.json
	Schema string `cfg:"schema"`
	// 为空时 schema push/pull/snapshots 不可用
	Snapshot *ref.TypeOptions `cfg:"snapshot"`
}

type app struct {
	configPath string
	name       string
	dataDir    string
	logLevel   string
	schemaPath string

	config *Config
	db     *db.Database
}

func (a *app) command() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabdb",
		Short: "Schema-enforcing tabular store",
		Long: `tabdb stores rows in typed tables. Every row is validated against its table
definition before it is written. Field types: integer, real, char, string, email, enum.

The schema (tables and enums) is kept in <data-dir>/<name>.schema.json and
reloaded on every invocation; row data lives in the backing SQL store.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipSetup(cmd) {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.db == nil || cmd.Annotations[annotationMutates] == "" {
				return nil
			}
			return a.db.SaveToDisk(a.config.Schema)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (.json, .yaml, .toml, .ini)")
	flags.StringVar(&a.name, "name", "", "database name (default from config, then \"default\")")
	flags.StringVar(&a.dataDir, "data-dir", "", "directory for sqlite files and the schema file (default \"databases\")")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringVar(&a.schemaPath, "schema", "", "schema file path (default <data-dir>/<name>.schema.json)")

	rootCmd.AddCommand(
		newEnumCmd(a),
		newTableCmd(a),
		newRowCmd(a),
		newIntersectCmd(a),
		newSchemaCmd(a),
	)
	return rootCmd
}

func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete":
		return true
	}
	return !cmd.Runnable()
}

// loadConfig 依次应用配置文件、环境变量和命令行参数
func (a *app) loadConfig(cmd *cobra.Command) (*Config, error) {
	c, err := cfg.NewConfigWithOptions(&cfg.Options{Path: a.configPath, EnvPrefix: envPrefix})
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := c.ConvertTo(config); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}

	flags := cmd.Flags()
	if a.name != "" {
		config.Database.Name = a.name
	}
	if a.dataDir != "" {
		config.Database.Store.Directory = a.dataDir
	}
	if config.Database.Logger != nil && (flags.Changed("log-level") || a.configPath == "") {
		config.Database.Logger.Level = a.logLevel
	}
	if a.schemaPath != "" {
		config.Schema = a.schemaPath
	}
	if config.Schema == "" {
		config.Schema = filepath.Join(config.Database.Store.Directory, config.Database.Name+".schema.json")
	}
	return config, nil
}

func (a *app) setup(cmd *cobra.Command) error {
	config, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.config = config

	d, err := db.NewDatabaseWithOptions(&config.Database)
	if err != nil {
		return err
	}
	if err := d.Connect(cmd.Context()); err != nil {
		return err
	}
	a.db = d

	if _, err := os.Stat(config.Schema); err == nil {
		if err := d.LoadFromDisk(cmd.Context(), config.Schema); err != nil {
			_ = d.Disconnect()
			return err
		}
	}
	return nil
}

// close 命令执行失败时 PersistentPostRunE 不会执行，连接在这里统一释放
func (a *app) close() {
	if a.db != nil {
		_ = a.db.Disconnect()
		a.db = nil
	}
}

func (a *app) snapshotStore() (snapshot.Store, error) {
	if a.config.Snapshot == nil || a.config.Snapshot.Type == "" {
		return nil, errors.New("snapshot store is not configured, set snapshot.type in the config file")
	}
	return snapshot.NewStoreWithOptions(a.config.Snapshot)
}

func mutates(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationMutates] = "true"
	return cmd
}
