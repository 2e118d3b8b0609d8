package store

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// freecache 要求的最小容量
const minCacheSize = 512 * 1024

type CacheOptions struct {
	// 缓存容量（字节），小于 512KB 时按 512KB 分配，为 0 时使用 10MB
	Size int `cfg:"size"`
	// 为 0 时不过期
	TTL time.Duration `cfg:"ttl"`
}

// CachedAdapter 为 GetByID 增加进程内缓存。
// 更新和删除淘汰对应行，建表和删表通过递增表版本号使该表的所有条目失效。
type CachedAdapter struct {
	adapter Adapter
	cache   *freecache.Cache
	ttl     int

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedAdapterWithOptions(adapter Adapter, options *CacheOptions) (*CachedAdapter, error) {
	if adapter == nil {
		return nil, schema.InvalidArgumentf("adapter cannot be nil")
	}
	if options == nil {
		options = &CacheOptions{}
	}
	size := options.Size
	if size == 0 {
		size = 10 * 1024 * 1024
	}
	if size < minCacheSize {
		size = minCacheSize
	}

	return &CachedAdapter{
		adapter:     adapter,
		cache:       freecache.NewCache(size),
		ttl:         int(options.TTL.Seconds()),
		generations: map[string]uint64{},
	}, nil
}

func (c *CachedAdapter) Unwrap() Adapter {
	return c.adapter
}

// Stats 命中和未命中次数
func (c *CachedAdapter) Stats() (hits int64, misses int64) {
	return c.cache.HitCount(), c.cache.MissCount()
}

func (c *CachedAdapter) generation(table string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[table]
}

func (c *CachedAdapter) invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[table]++
}

func (c *CachedAdapter) key(table string, id int64) []byte {
	return []byte(table + "\x00" + strconv.FormatUint(c.generation(table), 10) + "\x00" + strconv.FormatInt(id, 10))
}

// cachedRow 记录读取时的列集合，列集合不同视为未命中
type cachedRow struct {
	Columns []string   `msgpack:"c"`
	Row     schema.Row `msgpack:"r"`
}

func (c *CachedAdapter) Connect(ctx context.Context) error {
	return c.adapter.Connect(ctx)
}

// Close 同时清空缓存
func (c *CachedAdapter) Close() error {
	c.cache.Clear()
	return c.adapter.Close()
}

func (c *CachedAdapter) Connected() bool {
	return c.adapter.Connected()
}

func (c *CachedAdapter) CreateTable(ctx context.Context, table string, columns []string) error {
	defer c.invalidate(table)
	return c.adapter.CreateTable(ctx, table, columns)
}

func (c *CachedAdapter) DropTable(ctx context.Context, table string) error {
	defer c.invalidate(table)
	return c.adapter.DropTable(ctx, table)
}

func (c *CachedAdapter) Insert(ctx context.Context, table string, values map[string]string) (int64, error) {
	return c.adapter.Insert(ctx, table, values)
}

func (c *CachedAdapter) SelectAll(ctx context.Context, table string, columns []string) ([]schema.Row, error) {
	return c.adapter.SelectAll(ctx, table, columns)
}

func (c *CachedAdapter) Update(ctx context.Context, table string, id int64, values map[string]string) (bool, error) {
	defer c.cache.Del(c.key(table, id))
	return c.adapter.Update(ctx, table, id, values)
}

func (c *CachedAdapter) Delete(ctx context.Context, table string, id int64) (bool, error) {
	defer c.cache.Del(c.key(table, id))
	return c.adapter.Delete(ctx, table, id)
}

// GetByID 只缓存存在的行
func (c *CachedAdapter) GetByID(ctx context.Context, table string, id int64, columns []string) (*schema.Row, error) {
	key := c.key(table, id)
	if data, err := c.cache.Get(key); err == nil {
		var cached cachedRow
		if err := msgpack.Unmarshal(data, &cached); err == nil && slices.Equal(cached.Columns, columns) {
			return &cached.Row, nil
		}
	} else if !errors.Is(err, freecache.ErrNotFound) {
		return nil, errors.Wrap(err, "cache get failed")
	}

	row, err := c.adapter.GetByID(ctx, table, id, columns)
	if err != nil || row == nil {
		return row, err
	}

	if data, err := msgpack.Marshal(&cachedRow{Columns: columns, Row: *row}); err == nil {
		// 超过单条上限时 freecache 返回 ErrLargeEntry，不影响读取结果
		_ = c.cache.Set(key, data, c.ttl)
	}
	return row, nil
}
