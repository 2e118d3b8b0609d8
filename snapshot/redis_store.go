package snapshot

import (
	"context"
	"slices"
	"time"

	"github.com/hatlonely/tabdb/cfg"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint" def:"localhost:6379"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`
	// 键前缀
	Prefix string `cfg:"prefix" def:"tabdb:snapshot:"`
	// 为 0 时不过期
	TTL time.Duration `cfg:"ttl"`

	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
}

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStoreWithOptions(options *RedisStoreOptions) (*RedisStore, error) {
	if options == nil {
		return nil, errors.New("redis store options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if options.Endpoint == "" {
		return nil, errors.New("redis endpoint is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         options.Endpoint,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		DialTimeout:  options.DialTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping failed. endpoint: %s", options.Endpoint)
	}

	return &RedisStore{
		client: client,
		prefix: options.Prefix,
		ttl:    options.TTL,
	}, nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Put(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return errors.Wrap(s.client.Set(ctx, s.key(name), data, s.ttl).Err(), "redis.Set failed")
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(ErrNotFound, "name: %s", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis.Get failed")
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	return errors.Wrap(s.client.Del(ctx, s.key(name)).Err(), "redis.Del failed")
}

// List 使用 SCAN 遍历，不阻塞服务端
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, errors.Wrap(err, "redis.Scan failed")
		}
		for _, k := range keys {
			names = append(names, k[len(s.prefix):])
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (s *RedisStore) Close() error {
	return errors.Wrap(s.client.Close(), "redis close failed")
}
