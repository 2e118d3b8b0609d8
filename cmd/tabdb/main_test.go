package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// run 每次调用都是一次独立的进程级执行，状态只通过数据目录传递
func run(dir string, args ...string) (string, error) {
	var buf bytes.Buffer
	err := runContext(context.Background(), &buf, dir, args...)
	return buf.String(), err
}

func runContext(ctx context.Context, out io.Writer, dir string, args ...string) error {
	a := &app{}
	cmd := a.command()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--data-dir", dir, "--name", "test", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(ctx)
	a.close()
	return err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(b *syncBuffer, substr string) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), substr) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWorkflow(t *testing.T) {
	Convey("测试命令行工作流", t, func() {
		dir := t.TempDir()

		out, err := run(dir, "enum", "define", "status", "active", "inactive")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "enum status defined with 2 values")
		_, err = os.Stat(filepath.Join(dir, "test.schema.json"))
		So(err, ShouldBeNil)

		_, err = run(dir, "table", "create", "employees", "name:string", "age:integer", "email:email", "status:enum:status")
		So(err, ShouldBeNil)

		out, err = run(dir, "table", "list")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "employees")
		So(out, ShouldContainSubstring, "status:enum:status")

		out, err = run(dir, "table", "check", "employees")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "table employees is valid")

		out, err = run(dir, "row", "add", "employees", "name=John Doe", "age=30", "email=john@example.com", "status=active")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "row 1 added to employees")

		_, err = run(dir, "row", "add", "employees", "age=thirty")
		So(errors.Is(err, schema.ErrValidation), ShouldBeTrue)

		out, err = run(dir, "row", "list", "employees")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "John Doe")
		So(out, ShouldContainSubstring, "john@example.com")

		_, err = run(dir, "row", "update", "employees", "1", "status=inactive")
		So(err, ShouldBeNil)
		out, err = run(dir, "row", "get", "employees", "1")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "inactive")

		_, err = run(dir, "row", "get", "employees", "7")
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		_, err = run(dir, "enum", "drop", "status")
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		out, err = run(dir, "row", "delete", "employees", "1")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "row 1 deleted")
		_, err = run(dir, "row", "delete", "employees", "1")
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		_, err = run(dir, "table", "drop", "employees")
		So(err, ShouldBeNil)
		_, err = run(dir, "row", "list", "employees")
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		_, err = run(dir, "enum", "drop", "status")
		So(err, ShouldBeNil)
		out, err = run(dir, "enum", "list")
		So(err, ShouldBeNil)
		So(out, ShouldNotContainSubstring, "inactive")
	})
}

func TestIntersectCommand(t *testing.T) {
	Convey("测试 intersect 命令", t, func() {
		dir := t.TempDir()

		for _, table := range []string{"it", "hr"} {
			_, err := run(dir, "table", "create", table, "dept:string")
			So(err, ShouldBeNil)
		}
		for _, args := range [][]string{
			{"it", "dept=eng"}, {"it", "dept=eng"}, {"it", "dept=ops"}, {"it", "dept=qa"},
			{"hr", "dept=eng"}, {"hr", "dept=ops"}, {"hr", "dept=sales"},
		} {
			_, err := run(dir, append([]string{"row", "add"}, args...)...)
			So(err, ShouldBeNil)
		}

		out, err := run(dir, "intersect", "it", "hr", "dept")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "table intersect_it_hr created with 2 rows")
		So(out, ShouldContainSubstring, "eng")
		So(out, ShouldNotContainSubstring, "sales")

		// 结果表写入模式文件，后续调用可见
		out, err = run(dir, "table", "list")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "intersect_it_hr")

		_, err = run(dir, "intersect", "it", "missing", "dept")
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
	})
}

func TestSchemaCommands(t *testing.T) {
	Convey("测试 schema 命令", t, func() {
		dir := t.TempDir()
		_, err := run(dir, "enum", "define", "level", "low", "high")
		So(err, ShouldBeNil)

		exported := filepath.Join(dir, "export.yaml")
		_, err = run(dir, "schema", "save", exported)
		So(err, ShouldBeNil)

		other := t.TempDir()
		out, err := run(other, "schema", "load", exported)
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "schema loaded")
		out, err = run(other, "enum", "list")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "low, high")

		_, err = run(dir, "schema", "push")
		So(err, ShouldNotBeNil)
	})

	Convey("测试 schema push/pull", t, func() {
		dir := t.TempDir()
		config := filepath.Join(dir, "tabdb.yaml")
		So(os.WriteFile(config, []byte(`
database:
  logger:
    level: error
snapshot:
  type: BoltStore
  options:
    path: `+filepath.Join(dir, "snapshots.db")+`
`), 0644), ShouldBeNil)

		source := filepath.Join(dir, "source")
		_, err := run(source, "--config", config, "table", "create", "people", "name:string")
		So(err, ShouldBeNil)
		out, err := run(source, "--config", config, "schema", "push")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "snapshot test saved")

		out, err = run(source, "--config", config, "schema", "snapshots")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "test")

		target := filepath.Join(dir, "target")
		out, err = run(target, "--config", config, "schema", "pull", "test")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "snapshot test loaded")

		// 拉取后表已在存储中创建，可以直接写入
		_, err = run(target, "--config", config, "row", "add", "people", "name=Ann")
		So(err, ShouldBeNil)

		_, err = run(target, "--config", config, "schema", "pull", "missing")
		So(err, ShouldNotBeNil)
	})
}

func TestSchemaWatch(t *testing.T) {
	Convey("测试 schema watch", t, func() {
		dir := t.TempDir()
		_, err := run(dir, "table", "create", "a", "x:string")
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var out syncBuffer
		done := make(chan error, 1)
		go func() {
			done <- runContext(ctx, &out, dir, "schema", "watch")
		}()
		So(waitFor(&out, "schema reloaded: 1 tables"), ShouldBeTrue)

		_, err = run(dir, "table", "create", "b", "y:string")
		So(err, ShouldBeNil)
		So(waitFor(&out, "schema reloaded: 2 tables"), ShouldBeTrue)

		cancel()
		select {
		case err := <-done:
			So(err, ShouldBeNil)
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not stop")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	Convey("未配置的可选层保持关闭", t, func() {
		a := &app{}
		config, err := a.loadConfig(a.command())
		So(err, ShouldBeNil)
		So(config.Database.Observable, ShouldBeNil)
		So(config.Database.Cache, ShouldBeNil)
		So(config.Database.Logger, ShouldNotBeNil)
		So(config.Database.Logger.Level, ShouldEqual, "warn")
		So(config.Database.Name, ShouldEqual, "default")
	})

	Convey("配置后开启", t, func() {
		path := filepath.Join(t.TempDir(), "tabdb.yaml")
		So(os.WriteFile(path, []byte(`
database:
  observable:
    enableMetrics: true
  cache:
    size: 1048576
`), 0644), ShouldBeNil)

		a := &app{}
		cmd := a.command()
		a.configPath = path
		config, err := a.loadConfig(cmd)
		So(err, ShouldBeNil)
		So(config.Database.Observable, ShouldNotBeNil)
		So(config.Database.Observable.EnableMetrics, ShouldBeTrue)
		So(config.Database.Observable.EnableLogging, ShouldBeFalse)
		So(config.Database.Cache, ShouldNotBeNil)
		So(config.Database.Cache.Size, ShouldEqual, 1048576)
	})
}
