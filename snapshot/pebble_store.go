package snapshot

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/hatlonely/tabdb/cfg"
	"github.com/pkg/errors"
)

type PebbleStoreOptions struct {
	// 数据目录，不存在时自动创建
	Path   string `cfg:"path" validate:"required"`
	Prefix string `cfg:"prefix" def:"snapshot/"`
	// 为 true 时写入不等待 fsync
	SetWithoutSync bool `cfg:"setWithoutSync"`
	// 块缓存大小（字节），为 0 时使用 pebble 默认的 8MB
	CacheSize int64 `cfg:"cacheSize"`
}

type PebbleStore struct {
	db           *pebble.DB
	prefix       string
	writeOptions *pebble.WriteOptions
}

func NewPebbleStoreWithOptions(options *PebbleStoreOptions) (*PebbleStore, error) {
	if options == nil {
		return nil, errors.New("pebble store options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if options.Path == "" {
		return nil, errors.New("pebble store path is required")
	}

	pebbleOptions := &pebble.Options{}
	if options.CacheSize > 0 {
		cache := pebble.NewCache(options.CacheSize)
		defer cache.Unref()
		pebbleOptions.Cache = cache
	}

	db, err := pebble.Open(options.Path, pebbleOptions)
	if err != nil {
		return nil, errors.Wrap(err, "pebble.Open failed")
	}

	writeOptions := pebble.Sync
	if options.SetWithoutSync {
		writeOptions = pebble.NoSync
	}

	return &PebbleStore{
		db:           db,
		prefix:       options.Prefix,
		writeOptions: writeOptions,
	}, nil
}

func (s *PebbleStore) key(name string) []byte {
	return []byte(s.prefix + name)
}

func (s *PebbleStore) Put(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return errors.Wrap(s.db.Set(s.key(name), data, s.writeOptions), "pebble.Set failed")
}

func (s *PebbleStore) Get(ctx context.Context, name string) ([]byte, error) {
	value, closer, err := s.db.Get(s.key(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "name: %s", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "pebble.Get failed")
	}
	defer closer.Close()

	// value 只在 closer 关闭前有效
	data := make([]byte, len(value))
	copy(data, value)
	return data, nil
}

func (s *PebbleStore) Delete(ctx context.Context, name string) error {
	return errors.Wrap(s.db.Delete(s.key(name), s.writeOptions), "pebble.Delete failed")
}

func (s *PebbleStore) List(ctx context.Context) ([]string, error) {
	lower := []byte(s.prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return nil, errors.Wrap(err, "pebble.NewIter failed")
	}

	names := make([]string, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		names = append(names, string(iter.Key()[len(s.prefix):]))
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "pebble iterate failed")
	}
	return names, nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Wrap(err, "pebble close failed")
}

// prefixUpperBound 返回大于所有以 prefix 开头的键的最小键，prefix 为空或全为 0xff 时返回 nil
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
