package store

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hatlonely/tabdb/schema"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const memoryDatabase = ":memory:"

type SQLOptions struct {
	Driver string `cfg:"driver" def:"sqlite3" validate:"oneof=sqlite3 mysql"`
	// 设置后忽略下面的连接参数
	DSN string `cfg:"dsn"`
	// sqlite 数据文件目录，文件名为 <Database>.db
	Directory string `cfg:"directory" def:"databases"`
	// sqlite 下为 ":memory:" 时使用内存库
	Database string `cfg:"database"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port" def:"3306"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`
}

// SQL 基于 database/sql 的 Adapter 实现
type SQL struct {
	options SQLOptions
	dialect *dialect

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	if options == nil {
		return nil, schema.InvalidArgumentf("sql options cannot be nil")
	}
	d, ok := dialects[options.Driver]
	if !ok {
		return nil, schema.InvalidArgumentf("unsupported driver: %s", options.Driver)
	}
	if options.DSN == "" && options.Database == "" {
		return nil, schema.InvalidArgumentf("database name is required")
	}
	return &SQL{options: *options, dialect: d}, nil
}

// NewSQLWithDB 使用已打开的连接，返回的对象处于已连接状态
func NewSQLWithDB(db *sql.DB, driver string) (*SQL, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, schema.InvalidArgumentf("unsupported driver: %s", driver)
	}
	return &SQL{options: SQLOptions{Driver: driver}, dialect: d, db: db}, nil
}

// BuildDSN 根据选项生成连接串
func (o *SQLOptions) BuildDSN() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch o.Driver {
	case "sqlite3":
		if o.Database == memoryDatabase {
			return memoryDatabase, nil
		}
		return filepath.Join(o.Directory, o.Database+".db"), nil
	case "mysql":
		// clientFoundRows 让 UPDATE 返回匹配行数而不是变更行数
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&clientFoundRows=true",
			o.Username, o.Password, o.Host, o.Port, o.Database, o.Charset), nil
	default:
		return "", schema.InvalidArgumentf("unsupported driver: %s", o.Driver)
	}
}

// Connect 已连接时直接返回
func (s *SQL) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	dsn, err := s.options.BuildDSN()
	if err != nil {
		return err
	}
	if s.options.Driver == "sqlite3" && s.options.DSN == "" && s.options.Database != memoryDatabase {
		if err := os.MkdirAll(s.options.Directory, 0755); err != nil {
			return storageError("connect", "", errors.Wrapf(err, "create directory %s failed", s.options.Directory))
		}
	}

	db, err := sql.Open(s.options.Driver, dsn)
	if err != nil {
		return storageError("connect", "", err)
	}

	if s.options.Driver == "sqlite3" {
		// 单连接，保证内存库在各语句之间可见，同时避免写锁竞争
		db.SetMaxOpenConns(1)
	} else {
		if s.options.MaxConns > 0 {
			db.SetMaxOpenConns(s.options.MaxConns)
		}
		if s.options.MaxIdle > 0 {
			db.SetMaxIdleConns(s.options.MaxIdle)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return storageError("connect", "", err)
	}

	s.db = db
	return nil
}

func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return storageError("close", "", err)
	}
	return nil
}

func (s *SQL) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

func (s *SQL) Driver() string {
	return s.dialect.name
}

func (s *SQL) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.WithStack(schema.ErrNotConnected)
	}
	return s.db, nil
}

// withTx 在事务中执行 fn，失败时回滚并返回 StorageError
func (s *SQL) withTx(ctx context.Context, op string, table string, fn func(tx *sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(op, table, errors.Wrap(err, "begin transaction failed"))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.WithMessagef(err, "rollback failed: %v", rbErr)
		}
		return storageError(op, table, err)
	}

	if err := tx.Commit(); err != nil {
		return storageError(op, table, errors.Wrap(err, "commit failed"))
	}
	return nil
}

func checkIdentifiers(table string, columns []string) error {
	if !schema.ValidIdentifier(table) {
		return schema.InvalidArgumentf("invalid table name %q", table)
	}
	for _, c := range columns {
		if !schema.ValidIdentifier(c) {
			return schema.InvalidArgumentf("invalid column name %q", c)
		}
		if c == schema.IDColumn {
			return schema.InvalidArgumentf("column %q is reserved", c)
		}
	}
	return nil
}

func (s *SQL) CreateTable(ctx context.Context, table string, columns []string) error {
	if err := checkIdentifiers(table, columns); err != nil {
		return err
	}
	query := s.dialect.createTableSQL(table, columns)
	return s.withTx(ctx, "create table", table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query)
		return err
	})
}

func (s *SQL) DropTable(ctx context.Context, table string) error {
	if err := checkIdentifiers(table, nil); err != nil {
		return err
	}
	query := s.dialect.dropTableSQL(table)
	return s.withTx(ctx, "drop table", table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query)
		return err
	})
}

func (s *SQL) Insert(ctx context.Context, table string, values map[string]string) (int64, error) {
	columns := slices.Sorted(maps.Keys(values))
	if err := checkIdentifiers(table, columns); err != nil {
		return 0, err
	}

	query := s.dialect.insertSQL(table, columns)
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		args = append(args, values[c])
	}

	var id int64
	err := s.withTx(ctx, "insert", table, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQL) Update(ctx context.Context, table string, id int64, values map[string]string) (bool, error) {
	columns := slices.Sorted(maps.Keys(values))
	if err := checkIdentifiers(table, columns); err != nil {
		return false, err
	}

	query := s.dialect.updateSQL(table, columns)
	args := make([]any, 0, len(columns)+1)
	for _, c := range columns {
		args = append(args, values[c])
	}
	args = append(args, id)

	var affected int64
	err := s.withTx(ctx, "update", table, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQL) Delete(ctx context.Context, table string, id int64) (bool, error) {
	if err := checkIdentifiers(table, nil); err != nil {
		return false, err
	}

	query := s.dialect.deleteSQL(table)
	var affected int64
	err := s.withTx(ctx, "delete", table, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQL) SelectAll(ctx context.Context, table string, columns []string) ([]schema.Row, error) {
	if err := checkIdentifiers(table, columns); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, s.dialect.selectSQL(table, columns, false))
	if err != nil {
		return nil, storageError("select", table, err)
	}
	defer rows.Close()

	result := make([]schema.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, storageError("select", table, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("select", table, err)
	}
	return result, nil
}

func (s *SQL) GetByID(ctx context.Context, table string, id int64, columns []string) (*schema.Row, error) {
	if err := checkIdentifiers(table, columns); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, s.dialect.selectSQL(table, columns, true), id)
	if err != nil {
		return nil, storageError("get", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storageError("get", table, err)
		}
		return nil, nil
	}
	row, err := scanRow(rows, columns)
	if err != nil {
		return nil, storageError("get", table, err)
	}
	return &row, nil
}

// scanRow 第一列为 id，NULL 列不出现在 Values 中
func scanRow(rows *sql.Rows, columns []string) (schema.Row, error) {
	var id int64
	values := make([]sql.NullString, len(columns))
	dest := make([]any, 0, len(columns)+1)
	dest = append(dest, &id)
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return schema.Row{}, errors.Wrap(err, "scan row failed")
	}

	row := schema.Row{ID: id, Values: make(map[string]string, len(columns))}
	for i, c := range columns {
		if values[i].Valid {
			row.Values[c] = values[i].String
		}
	}
	return row, nil
}
