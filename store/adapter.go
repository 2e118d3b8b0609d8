package store

import (
	"context"

	"github.com/hatlonely/tabdb/schema"
)

// Adapter 行数据的持久化层，所有列按文本存储，类型约束由 validator 负责
// 调用方需保证传入的 values 已经通过校验
type Adapter interface {
	Connect(ctx context.Context) error
	// Close 可重复调用
	Close() error
	Connected() bool

	// CreateTable 表已存在时不做任何修改
	CreateTable(ctx context.Context, table string, columns []string) error
	DropTable(ctx context.Context, table string) error

	Insert(ctx context.Context, table string, values map[string]string) (int64, error)
	// SelectAll 按 id 升序返回全部行，columns 之外的列不读取
	SelectAll(ctx context.Context, table string, columns []string) ([]schema.Row, error)
	// Update id 不存在时返回 false, nil
	Update(ctx context.Context, table string, id int64, values map[string]string) (bool, error)
	// Delete id 不存在时返回 false, nil
	Delete(ctx context.Context, table string, id int64) (bool, error)
	// GetByID id 不存在时返回 nil, nil
	GetByID(ctx context.Context, table string, id int64, columns []string) (*schema.Row, error)
}

var (
	_ Adapter = (*SQL)(nil)
	_ Adapter = (*ObservableAdapter)(nil)
	_ Adapter = (*CachedAdapter)(nil)
)
