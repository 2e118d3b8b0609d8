package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hatlonely/tabdb/ref"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func testStores(t *testing.T) map[string]*ref.TypeOptions {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	return map[string]*ref.TypeOptions{
		"bolt": {
			Type:    "BoltStore",
			Options: map[string]any{"path": filepath.Join(dir, "bolt", "snapshots.db")},
		},
		"leveldb": {
			Type:    "LevelDBStore",
			Options: map[string]any{"path": filepath.Join(dir, "leveldb")},
		},
		"pebble": {
			Type:    "PebbleStore",
			Options: map[string]any{"path": filepath.Join(dir, "pebble"), "setWithoutSync": true},
		},
		"redis": {
			Namespace: Namespace,
			Type:      "RedisStore",
			Options:   map[string]any{"endpoint": mr.Addr(), "prefix": "test:snapshot:"},
		},
	}
}

func TestStores(t *testing.T) {
	for name, options := range testStores(t) {
		Convey("测试 "+name, t, func() {
			ctx := context.Background()
			s, err := NewStoreWithOptions(options)
			So(err, ShouldBeNil)
			defer s.Close()

			for _, n := range []string{"hr", "company", "finance"} {
				_ = s.Delete(ctx, n)
			}

			Convey("不存在的快照", func() {
				_, err := s.Get(ctx, "missing")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(s.Delete(ctx, "missing"), ShouldBeNil)
			})

			Convey("写入、覆盖、读取和删除", func() {
				So(s.Put(ctx, "hr", []byte("v1")), ShouldBeNil)
				So(s.Put(ctx, "hr", []byte("v2")), ShouldBeNil)
				So(s.Put(ctx, "company", []byte{0x00, 0xff}), ShouldBeNil)

				data, err := s.Get(ctx, "hr")
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "v2")

				data, err = s.Get(ctx, "company")
				So(err, ShouldBeNil)
				So(data, ShouldResemble, []byte{0x00, 0xff})

				names, err := s.List(ctx)
				So(err, ShouldBeNil)
				So(names, ShouldResemble, []string{"company", "hr"})

				So(s.Delete(ctx, "hr"), ShouldBeNil)
				_, err = s.Get(ctx, "hr")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)

				names, err = s.List(ctx)
				So(err, ShouldBeNil)
				So(names, ShouldResemble, []string{"company"})
			})

			Convey("名称不能为空", func() {
				So(s.Put(ctx, "", []byte("x")), ShouldNotBeNil)
			})
		})
	}
}

func TestNewStoreWithOptions(t *testing.T) {
	Convey("测试 NewStoreWithOptions", t, func() {
		_, err := NewStoreWithOptions(nil)
		So(err, ShouldNotBeNil)

		_, err = NewStoreWithOptions(&ref.TypeOptions{Type: "UnknownStore"})
		So(err, ShouldNotBeNil)

		Convey("缺少路径", func() {
			_, err := NewStoreWithOptions(&ref.TypeOptions{Type: "BoltStore"})
			So(err, ShouldNotBeNil)
			_, err = NewStoreWithOptions(&ref.TypeOptions{Type: "LevelDBStore"})
			So(err, ShouldNotBeNil)
			_, err = NewStoreWithOptions(&ref.TypeOptions{Type: "PebbleStore"})
			So(err, ShouldNotBeNil)
		})

		Convey("redis 不可达", func() {
			_, err := NewStoreWithOptions(&ref.TypeOptions{
				Type:    "RedisStore",
				Options: map[string]any{"endpoint": "127.0.0.1:1", "dialTimeout": "100ms"},
			})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		prefix string
		want   []byte
	}{
		{"snapshot/", []byte("snapshot0")},
		{"a", []byte("b")},
		{"a\xff", []byte("b")},
		{"\xff\xff", nil},
		{"", nil},
	}
	for _, c := range cases {
		got := prefixUpperBound([]byte(c.prefix))
		if string(got) != string(c.want) || (got == nil) != (c.want == nil) {
			t.Errorf("prefixUpperBound(%q) = %q, want %q", c.prefix, got, c.want)
		}
	}
}
