package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/tabdb/cfg"
	"github.com/hatlonely/tabdb/codec"
	"github.com/hatlonely/tabdb/join"
	"github.com/hatlonely/tabdb/log"
	"github.com/hatlonely/tabdb/log/logger"
	"github.com/hatlonely/tabdb/schema"
	"github.com/hatlonely/tabdb/snapshot"
	"github.com/hatlonely/tabdb/store"
	"github.com/hatlonely/tabdb/validator"
	"github.com/pkg/errors"
)

// IntersectPrefix 交集结果表名前缀，结果表名为 intersect_<t1>_<t2>
const IntersectPrefix = "intersect_"

type Options struct {
	// 数据库名，sqlite 下同时作为数据文件名
	Name string `cfg:"name" def:"default" validate:"required"`

	Store store.SQLOptions `cfg:"store"`
	// 为空时不缓存
	Cache *store.CacheOptions `cfg:"cache"`
	// 为空时不采集指标和追踪，非空时按各开关开启
	Observable *store.ObservableOptions `cfg:"observable"`
	// 为空时使用 log.Default()
	Logger *logger.SLogOptions `cfg:"logger"`
}

// Database 组合模式目录、行校验器和存储适配器。
// 非并发安全，同一时刻只应有一个调用方修改模式。
type Database struct {
	name      string
	registry  *schema.Registry
	validator *validator.Validator
	adapter   store.Adapter
	logger    logger.Logger
}

func NewDatabaseWithOptions(options *Options) (*Database, error) {
	if options == nil {
		return nil, schema.InvalidArgumentf("database options cannot be nil")
	}
	if options.Name == "" {
		return nil, schema.InvalidArgumentf("database name cannot be empty")
	}

	storeOptions := options.Store
	if storeOptions.DSN == "" && storeOptions.Database == "" {
		storeOptions.Database = options.Name
	}
	if err := cfg.SetDefaults(&storeOptions); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "log.NewLoggerWithOptions failed")
	}

	sqlAdapter, err := store.NewSQLWithOptions(&storeOptions)
	if err != nil {
		return nil, errors.WithMessage(err, "store.NewSQLWithOptions failed")
	}

	var adapter store.Adapter = sqlAdapter
	if options.Cache != nil {
		if adapter, err = store.NewCachedAdapterWithOptions(adapter, options.Cache); err != nil {
			return nil, errors.WithMessage(err, "store.NewCachedAdapterWithOptions failed")
		}
	}
	if options.Observable != nil {
		if adapter, err = store.NewObservableAdapterWithOptions(adapter, options.Observable, nil, l); err != nil {
			return nil, errors.WithMessage(err, "store.NewObservableAdapterWithOptions failed")
		}
	}

	return NewDatabaseWithAdapter(options.Name, adapter, l), nil
}

// NewDatabase sqlite 存储，数据文件位于 databases/<name>.db
func NewDatabase(name string) (*Database, error) {
	return NewDatabaseWithOptions(&Options{Name: name})
}

// NewDatabaseWithAdapter l 为 nil 时使用 log.Default()
func NewDatabaseWithAdapter(name string, adapter store.Adapter, l logger.Logger) *Database {
	if l == nil {
		l = log.Default()
	}
	registry := schema.NewRegistry()
	return &Database{
		name:      name,
		registry:  registry,
		validator: validator.NewValidator(registry),
		adapter:   adapter,
		logger:    l.With("database", name),
	}
}

func (d *Database) Name() string {
	return d.name
}

// Registry 返回当前目录，LoadFromDisk 之后会被替换
func (d *Database) Registry() *schema.Registry {
	return d.registry
}

func (d *Database) Adapter() store.Adapter {
	return d.adapter
}

func (d *Database) Connect(ctx context.Context) error {
	if err := d.adapter.Connect(ctx); err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "database connected")
	return nil
}

// Disconnect 可重复调用，内存中的模式目录保持不变
func (d *Database) Disconnect() error {
	if !d.adapter.Connected() {
		return nil
	}
	if err := d.adapter.Close(); err != nil {
		return err
	}
	d.logger.Info("database disconnected")
	return nil
}

func (d *Database) Connected() bool {
	return d.adapter.Connected()
}

func (d *Database) DefineEnum(ctx context.Context, name string, values []string) (*schema.EnumDefinition, error) {
	enum, err := d.registry.DefineEnum(name, values)
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "enum defined", "enum", enum.Name, "values", enum.Values)
	return enum, nil
}

// DropEnum 仍被表字段引用时拒绝删除
func (d *Database) DropEnum(ctx context.Context, name string) error {
	if err := d.registry.RemoveEnum(name); err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "enum dropped", "enum", name)
	return nil
}

// CreateTable 先在存储中建表（已存在时不变），再写入目录。
// 表名不区分大小写，同名定义会被替换并保留原有名称；
// 存储中已有的列不会改变，所以替换时字段名集合必须相同，只允许修改字段类型和枚举引用。
func (d *Database) CreateTable(ctx context.Context, def *schema.TableDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if !d.adapter.Connected() {
		return errors.WithStack(schema.ErrNotConnected)
	}

	name := def.Name
	if existing, ok := d.registry.LookupTable(def.Name); ok {
		if !sameColumns(existing.FieldNames(), def.FieldNames()) {
			return schema.InvalidArgumentf("table %q already exists with fields %v, drop it before changing fields to %v",
				existing.Name, existing.FieldNames(), def.FieldNames())
		}
		name = existing.Name
	}

	if err := d.adapter.CreateTable(ctx, name, def.FieldNames()); err != nil {
		return err
	}
	if err := d.registry.PutTable(def); err != nil {
		return err
	}

	d.logger.InfoContext(ctx, "table created", "table", name, "fields", def.FieldNames())
	return nil
}

// sameColumns 忽略顺序和大小写比较列名集合
func sameColumns(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, c := range a {
		set[strings.ToLower(c)] = struct{}{}
	}
	for _, c := range b {
		if _, ok := set[strings.ToLower(c)]; !ok {
			return false
		}
	}
	return true
}

func (d *Database) DropTable(ctx context.Context, name string) error {
	def, err := d.lookupTable(name)
	if err != nil {
		return err
	}
	if err := d.adapter.DropTable(ctx, def.Name); err != nil {
		return err
	}
	d.registry.RemoveTable(def.Name)

	d.logger.InfoContext(ctx, "table dropped", "table", def.Name)
	return nil
}

// lookupTable 返回的定义携带目录中的表名，存储操作统一使用该名称
func (d *Database) lookupTable(name string) (*schema.TableDefinition, error) {
	def, ok := d.registry.LookupTable(name)
	if !ok {
		return nil, schema.InvalidArgumentf("unknown table %q", name)
	}
	return def, nil
}

// AddRow 校验通过后写入，返回新行 id
func (d *Database) AddRow(ctx context.Context, table string, values map[string]string) (int64, error) {
	if len(values) == 0 {
		return 0, schema.InvalidArgumentf("row values cannot be empty")
	}
	return d.addRow(ctx, table, values)
}

// addRow 允许空行，交集结果中所有字段都缺失的行以空行写入
func (d *Database) addRow(ctx context.Context, table string, values map[string]string) (int64, error) {
	def, err := d.lookupTable(table)
	if err != nil {
		return 0, err
	}
	if err := d.validator.Validate(def.Name, values); err != nil {
		return 0, err
	}
	id, err := d.adapter.Insert(ctx, def.Name, values)
	if err != nil {
		return 0, err
	}
	d.logger.DebugContext(ctx, "row added", "table", def.Name, "id", id)
	return id, nil
}

// QueryRows 按 id 升序返回全部行，错误原样返回
func (d *Database) QueryRows(ctx context.Context, table string) ([]schema.Row, error) {
	def, err := d.lookupTable(table)
	if err != nil {
		return nil, err
	}
	return d.adapter.SelectAll(ctx, def.Name, def.FieldNames())
}

// GetRows 与 QueryRows 相同，但任何错误都只记录日志并返回空切片
func (d *Database) GetRows(ctx context.Context, table string) []schema.Row {
	rows, err := d.QueryRows(ctx, table)
	if err != nil {
		d.logger.WarnContext(ctx, "get rows failed", "table", table, "error", err.Error())
		return []schema.Row{}
	}
	return rows
}

// UpdateRow 校验通过后按 id 覆盖给定字段，行不存在时返回 false
func (d *Database) UpdateRow(ctx context.Context, table string, id int64, values map[string]string) (bool, error) {
	if len(values) == 0 {
		return false, schema.InvalidArgumentf("row values cannot be empty")
	}
	def, err := d.lookupTable(table)
	if err != nil {
		return false, err
	}
	if err := d.validator.Validate(def.Name, values); err != nil {
		return false, err
	}
	ok, err := d.adapter.Update(ctx, def.Name, id, values)
	if err != nil {
		return false, err
	}
	d.logger.DebugContext(ctx, "row updated", "table", def.Name, "id", id, "found", ok)
	return ok, nil
}

func (d *Database) DeleteRow(ctx context.Context, table string, id int64) (bool, error) {
	def, err := d.lookupTable(table)
	if err != nil {
		return false, err
	}
	ok, err := d.adapter.Delete(ctx, def.Name, id)
	if err != nil {
		return false, err
	}
	d.logger.DebugContext(ctx, "row deleted", "table", def.Name, "id", id, "found", ok)
	return ok, nil
}

// GetRowByID 行不存在时返回 nil, nil
func (d *Database) GetRowByID(ctx context.Context, table string, id int64) (*schema.Row, error) {
	def, err := d.lookupTable(table)
	if err != nil {
		return nil, err
	}
	return d.adapter.GetByID(ctx, def.Name, id, def.FieldNames())
}

// IntersectTables 在 fields 上对 table1 和 table2 求等值交集，
// 结果去重后写入重建的 intersect_<table1>_<table2> 表，字段类型取自 table1。
// 结果行逐行写入，中途失败时已写入的行保留。
func (d *Database) IntersectTables(ctx context.Context, table1 string, table2 string, fields []string) (string, error) {
	def1, err := d.lookupTable(table1)
	if err != nil {
		return "", err
	}
	def2, err := d.lookupTable(table2)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", schema.InvalidArgumentf("intersection requires at least one field")
	}

	result := &schema.TableDefinition{Name: IntersectPrefix + def1.Name + "_" + def2.Name}
	for _, name := range fields {
		field, ok := def1.Field(name)
		if !ok {
			return "", schema.InvalidArgumentf("field %q not found in table %q", name, def1.Name)
		}
		result.Fields = append(result.Fields, field)
	}
	if err := result.Validate(); err != nil {
		return "", err
	}
	if !d.adapter.Connected() {
		return "", errors.WithStack(schema.ErrNotConnected)
	}

	left, err := d.QueryRows(ctx, table1)
	if err != nil {
		return "", errors.WithMessagef(err, "read table %s failed", def1.Name)
	}
	right, err := d.QueryRows(ctx, table2)
	if err != nil {
		return "", errors.WithMessagef(err, "read table %s failed", def2.Name)
	}

	if _, ok := d.registry.LookupTable(result.Name); ok {
		if err := d.DropTable(ctx, result.Name); err != nil {
			return "", err
		}
	} else if err := d.adapter.DropTable(ctx, result.Name); err != nil {
		return "", err
	}
	if err := d.CreateTable(ctx, result); err != nil {
		return "", err
	}

	rows := join.Distinct(left, right, fields)
	for i, values := range rows {
		if _, err := d.addRow(ctx, result.Name, values); err != nil {
			return "", errors.WithMessagef(err, "insert intersection row %d/%d failed", i+1, len(rows))
		}
	}

	d.logger.InfoContext(ctx, "tables intersected",
		"left", def1.Name,
		"right", def2.Name,
		"fields", fields,
		"result", result.Name,
		"rows", len(rows),
	)
	return result.Name, nil
}

// ValidateRow 与 AddRow 使用相同的规则，不访问存储
func (d *Database) ValidateRow(table string, values map[string]string) error {
	return d.validator.Validate(table, values)
}

// ValidateTableStructure 表存在且每个字段类型合法、枚举字段引用了已定义的枚举
func (d *Database) ValidateTableStructure(name string) bool {
	def, ok := d.registry.LookupTable(name)
	if !ok {
		return false
	}
	if def.Validate() != nil {
		return false
	}
	for _, f := range def.Fields {
		if f.Type != schema.FieldTypeEnum {
			continue
		}
		if _, ok := d.registry.LookupEnum(f.EnumName); !ok {
			return false
		}
	}
	return true
}

// Tables 按创建顺序返回表定义的副本
func (d *Database) Tables() []*schema.TableDefinition {
	return d.registry.Tables()
}

func (d *Database) EnumDefinitions() []*schema.EnumDefinition {
	return d.registry.Enums()
}

// SaveToDisk 按扩展名选择编码格式写入数据库名和模式目录，不包含行数据
func (d *Database) SaveToDisk(path string) error {
	if err := codec.SaveFile(path, d.name, d.registry); err != nil {
		return err
	}
	d.logger.Info("schema saved", "path", path, "tables", len(d.registry.Tables()))
	return nil
}

// LoadFromDisk 替换数据库名和模式目录。
// 已连接时为每个表执行建表（已存在时不变），使后续的行操作可用。
func (d *Database) LoadFromDisk(ctx context.Context, path string) error {
	name, registry, err := codec.LoadFile(path)
	if err != nil {
		return err
	}
	return d.replaceRegistry(ctx, name, registry, "path", path)
}

// SaveSnapshot 以 msgpack 编码写入快照存储，快照名为数据库名
func (d *Database) SaveSnapshot(ctx context.Context, s snapshot.Store) error {
	data, err := codec.NewMsgPackCodec().Marshal(codec.Encode(d.name, d.registry))
	if err != nil {
		return err
	}
	if err := s.Put(ctx, d.name, data); err != nil {
		return errors.WithMessagef(err, "save snapshot %s failed", d.name)
	}
	d.logger.InfoContext(ctx, "snapshot saved", "snapshot", d.name, "bytes", len(data))
	return nil
}

// LoadSnapshot 与 LoadFromDisk 语义相同，数据来自快照存储
func (d *Database) LoadSnapshot(ctx context.Context, s snapshot.Store, name string) error {
	data, err := s.Get(ctx, name)
	if err != nil {
		return errors.WithMessagef(err, "load snapshot %s failed", name)
	}
	doc, err := codec.NewMsgPackCodec().Unmarshal(data)
	if err != nil {
		return errors.WithMessagef(err, "load snapshot %s failed", name)
	}
	registry, err := codec.Decode(doc)
	if err != nil {
		return errors.WithMessagef(err, "load snapshot %s failed", name)
	}
	return d.replaceRegistry(ctx, doc.Name, registry, "snapshot", name)
}

func (d *Database) replaceRegistry(ctx context.Context, name string, registry *schema.Registry, source ...any) error {
	if d.adapter.Connected() {
		for _, def := range registry.Tables() {
			if err := d.adapter.CreateTable(ctx, def.Name, def.FieldNames()); err != nil {
				return errors.WithMessagef(err, "materialize table %s failed", def.Name)
			}
		}
	}

	if name != "" {
		d.name = name
	}
	d.registry = registry
	d.validator = validator.NewValidator(registry)

	d.logger.InfoContext(ctx, "schema loaded", append(source,
		"tables", len(registry.Tables()),
		"enums", len(registry.Enums()),
	)...)
	return nil
}

func (d *Database) String() string {
	return fmt.Sprintf("Database(%s, tables=%d, enums=%d)", d.name, len(d.registry.Tables()), len(d.registry.Enums()))
}
