package snapshot

import (
	"context"

	"github.com/hatlonely/tabdb/cfg"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBStoreOptions struct {
	// 数据目录，不存在时自动创建
	Path string `cfg:"path" validate:"required"`
	// 键前缀，用于和同库的其他数据隔离
	Prefix string `cfg:"prefix" def:"snapshot/"`
	// 为 true 时写入不等待 fsync
	NoSync bool `cfg:"noSync"`
	// 'sorted table' 块缓存容量，为 0 时使用 leveldb 默认的 8MiB
	BlockCacheCapacity int `cfg:"blockCacheCapacity"`
}

type LevelDBStore struct {
	db     *leveldb.DB
	prefix string
	sync   bool
}

func NewLevelDBStoreWithOptions(options *LevelDBStoreOptions) (*LevelDBStore, error) {
	if options == nil {
		return nil, errors.New("leveldb store options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if options.Path == "" {
		return nil, errors.New("leveldb store path is required")
	}

	db, err := leveldb.OpenFile(options.Path, &opt.Options{
		BlockCacheCapacity: options.BlockCacheCapacity,
	})
	if err != nil {
		return nil, errors.Wrap(err, "leveldb.OpenFile failed. path: "+options.Path)
	}

	return &LevelDBStore{
		db:     db,
		prefix: options.Prefix,
		sync:   !options.NoSync,
	}, nil
}

func (s *LevelDBStore) key(name string) []byte {
	return []byte(s.prefix + name)
}

func (s *LevelDBStore) Put(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return errors.Wrap(s.db.Put(s.key(name), data, &opt.WriteOptions{Sync: s.sync}), "leveldb.Put failed")
}

func (s *LevelDBStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.db.Get(s.key(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "name: %s", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "leveldb.Get failed")
	}
	return data, nil
}

func (s *LevelDBStore) Delete(ctx context.Context, name string) error {
	return errors.Wrap(s.db.Delete(s.key(name), &opt.WriteOptions{Sync: s.sync}), "leveldb.Delete failed")
}

func (s *LevelDBStore) List(ctx context.Context) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(s.prefix)), nil)
	defer iter.Release()

	names := make([]string, 0)
	for iter.Next() {
		names = append(names, string(iter.Key()[len(s.prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "leveldb iterate failed")
	}
	return names, nil
}

func (s *LevelDBStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Wrap(err, "leveldb close failed")
}
