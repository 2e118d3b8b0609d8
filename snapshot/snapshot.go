package snapshot

import (
	"context"

	"github.com/hatlonely/tabdb/ref"
	"github.com/pkg/errors"
)

// Namespace snapshot 存储在 ref 中的注册命名空间
const Namespace = "github.com/hatlonely/tabdb/snapshot"

var ErrNotFound = errors.New("snapshot not found")

// Store 按数据库名保存编码后的模式文档
type Store interface {
	// Put 覆盖同名快照
	Put(ctx context.Context, name string, data []byte) error
	// Get 不存在时返回 ErrNotFound
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete 不存在时也返回成功
	Delete(ctx context.Context, name string) error
	// List 按字典序返回所有快照名
	List(ctx context.Context) ([]string, error)
	Close() error
}

var (
	_ Store = (*BoltStore)(nil)
	_ Store = (*LevelDBStore)(nil)
	_ Store = (*PebbleStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func init() {
	ref.MustRegister(Namespace, "BoltStore", NewBoltStoreWithOptions)
	ref.MustRegister(Namespace, "LevelDBStore", NewLevelDBStoreWithOptions)
	ref.MustRegister(Namespace, "PebbleStore", NewPebbleStoreWithOptions)
	ref.MustRegister(Namespace, "RedisStore", NewRedisStoreWithOptions)
}

// NewStoreWithOptions options.Namespace 为空时使用 Namespace
func NewStoreWithOptions(options *ref.TypeOptions) (Store, error) {
	if options == nil {
		return nil, errors.New("snapshot store options cannot be nil")
	}
	typeOptions := *options
	if typeOptions.Namespace == "" {
		typeOptions.Namespace = Namespace
	}
	s, err := ref.NewWithTypeOptions[Store](&typeOptions)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithTypeOptions failed")
	}
	return s, nil
}

func checkName(name string) error {
	if name == "" {
		return errors.New("snapshot name cannot be empty")
	}
	return nil
}
