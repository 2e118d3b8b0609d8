package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hatlonely/tabdb/cfg"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltStoreOptions struct {
	// 数据库文件路径，目录不存在时自动创建
	Path string `cfg:"path" validate:"required"`
	// 存放快照的桶
	Bucket string `cfg:"bucket" def:"snapshots"`
	// 获取文件锁的等待时间，为 0 时无限期等待
	Timeout time.Duration `cfg:"timeout" def:"1s"`
	NoSync  bool          `cfg:"noSync"`
}

type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

func NewBoltStoreWithOptions(options *BoltStoreOptions) (*BoltStore, error) {
	if options == nil {
		return nil, errors.New("bolt store options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if options.Path == "" {
		return nil, errors.New("bolt store path is required")
	}
	bucket := options.Bucket

	if err := os.MkdirAll(filepath.Dir(options.Path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s failed", options.Path)
	}
	db, err := bolt.Open(options.Path, 0644, &bolt.Options{
		Timeout: options.Timeout,
		NoSync:  options.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open failed. path: %s", options.Path)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "create bucket %s failed", bucket)
	}

	return &BoltStore{db: db, bucket: []byte(bucket)}, nil
}

func (s *BoltStore) Put(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return errors.Wrap(tx.Bucket(s.bucket).Put([]byte(name), data), "bucket.Put failed")
	})
}

func (s *BoltStore) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(name))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "name: %s", name)
		}
		// bbolt 返回的切片只在事务内有效
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return data, err
}

func (s *BoltStore) Delete(ctx context.Context, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return errors.Wrap(tx.Bucket(s.bucket).Delete([]byte(name)), "bucket.Delete failed")
	})
}

func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Wrap(err, "bolt close failed")
}
