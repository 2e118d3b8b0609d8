package db

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/hatlonely/tabdb/log"
	"github.com/hatlonely/tabdb/log/logger"
	"github.com/hatlonely/tabdb/schema"
	"github.com/hatlonely/tabdb/store"
	"github.com/hatlonely/tabdb/validator"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestDatabase(t *testing.T) *Database {
	d, err := NewDatabaseWithOptions(&Options{
		Name:   "company",
		Store:  store.SQLOptions{Directory: t.TempDir()},
		Logger: &logger.SLogOptions{Level: "error"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Disconnect() })
	return d
}

func employeesTable() *schema.TableDefinition {
	return &schema.TableDefinition{
		Name: "employees",
		Fields: []schema.FieldDefinition{
			{Name: "name", Type: schema.FieldTypeString},
			{Name: "age", Type: schema.FieldTypeInteger},
			{Name: "email", Type: schema.FieldTypeEmail},
			{Name: "status", Type: schema.FieldTypeEnum, EnumName: "status"},
		},
	}
}

func deptTable(name string) *schema.TableDefinition {
	return &schema.TableDefinition{
		Name:   name,
		Fields: []schema.FieldDefinition{{Name: "dept", Type: schema.FieldTypeString}},
	}
}

func TestNewDatabaseWithOptions(t *testing.T) {
	Convey("测试 NewDatabaseWithOptions", t, func() {
		_, err := NewDatabaseWithOptions(nil)
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		_, err = NewDatabaseWithOptions(&Options{})
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		_, err = NewDatabaseWithOptions(&Options{Name: "x", Store: store.SQLOptions{Driver: "postgres"}})
		So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

		Convey("默认使用 sqlite，数据文件名取数据库名", func() {
			d, err := NewDatabase("hr")
			So(err, ShouldBeNil)
			So(d.Name(), ShouldEqual, "hr")
			So(d.Connected(), ShouldBeFalse)

			sqlAdapter, ok := d.Adapter().(*store.SQL)
			So(ok, ShouldBeTrue)
			So(sqlAdapter.Driver(), ShouldEqual, "sqlite3")
		})

		Convey("开启缓存和观测", func() {
			dir := t.TempDir()
			d, err := NewDatabaseWithOptions(&Options{
				Name:       "observed",
				Store:      store.SQLOptions{Directory: dir},
				Cache:      &store.CacheOptions{},
				Observable: &store.ObservableOptions{Name: "tabdb_db_test", EnableMetrics: true},
				Logger:     &logger.SLogOptions{Level: "error"},
			})
			So(err, ShouldBeNil)

			obs, ok := d.Adapter().(*store.ObservableAdapter)
			So(ok, ShouldBeTrue)
			_, ok = obs.Unwrap().(*store.CachedAdapter)
			So(ok, ShouldBeTrue)

			ctx := context.Background()
			So(d.Connect(ctx), ShouldBeNil)
			defer d.Disconnect()

			So(d.CreateTable(ctx, deptTable("teams")), ShouldBeNil)
			id, err := d.AddRow(ctx, "teams", map[string]string{"dept": "IT"})
			So(err, ShouldBeNil)

			row, err := d.GetRowByID(ctx, "teams", id)
			So(err, ShouldBeNil)
			So(row.Values["dept"], ShouldEqual, "IT")
		})
	})
}

func TestDatabaseNotConnected(t *testing.T) {
	Convey("未连接时的行为", t, func() {
		ctx := context.Background()
		d, err := NewDatabaseWithOptions(&Options{
			Name:   "offline",
			Store:  store.SQLOptions{Directory: t.TempDir()},
			Logger: &logger.SLogOptions{Level: "error"},
		})
		So(err, ShouldBeNil)

		err = d.CreateTable(ctx, deptTable("teams"))
		So(errors.Is(err, schema.ErrNotConnected), ShouldBeTrue)
		So(d.Tables(), ShouldBeEmpty)

		Convey("参数错误优先于连接状态", func() {
			err := d.CreateTable(ctx, &schema.TableDefinition{Name: "empty"})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("断开后目录保留，写操作报错", func() {
			So(d.Connect(ctx), ShouldBeNil)
			So(d.CreateTable(ctx, deptTable("teams")), ShouldBeNil)
			So(d.Disconnect(), ShouldBeNil)
			So(d.Disconnect(), ShouldBeNil)

			So(d.Tables(), ShouldHaveLength, 1)
			_, err := d.AddRow(ctx, "teams", map[string]string{"dept": "IT"})
			So(errors.Is(err, schema.ErrNotConnected), ShouldBeTrue)
		})
	})
}

func TestDatabaseCRUD(t *testing.T) {
	Convey("测试行的增删改查", t, func() {
		ctx := context.Background()
		d := newTestDatabase(t)

		_, err := d.DefineEnum(ctx, "status", []string{"active", " inactive ", ""})
		So(err, ShouldBeNil)
		So(d.CreateTable(ctx, employeesTable()), ShouldBeNil)
		So(d.ValidateTableStructure("employees"), ShouldBeTrue)

		id, err := d.AddRow(ctx, "employees", map[string]string{
			"name":   "John Doe",
			"age":    "30",
			"email":  "john@example.com",
			"status": "active",
		})
		So(err, ShouldBeNil)
		So(id, ShouldBeGreaterThan, 0)

		id2, err := d.AddRow(ctx, "employees", map[string]string{"name": "Jane", "status": "inactive"})
		So(err, ShouldBeNil)
		So(id2, ShouldNotEqual, id)

		Convey("读取", func() {
			row, err := d.GetRowByID(ctx, "employees", id)
			So(err, ShouldBeNil)
			So(row.ID, ShouldEqual, id)
			So(row.Values, ShouldResemble, map[string]string{
				"name":   "John Doe",
				"age":    "30",
				"email":  "john@example.com",
				"status": "active",
			})

			rows := d.GetRows(ctx, "employees")
			So(rows, ShouldHaveLength, 2)
			So(rows[0].ID, ShouldEqual, id)
			So(rows[1].Values, ShouldResemble, map[string]string{"name": "Jane", "status": "inactive"})

			row, err = d.GetRowByID(ctx, "employees", 9999)
			So(err, ShouldBeNil)
			So(row, ShouldBeNil)
		})

		Convey("非法行不会写入存储", func() {
			_, err := d.AddRow(ctx, "employees", map[string]string{"name": "Bad", "email": "invalid-email"})
			So(errors.Is(err, schema.ErrValidation), ShouldBeTrue)
			var verr *validator.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Field, ShouldEqual, "email")

			_, err = d.AddRow(ctx, "employees", map[string]string{"status": "pending"})
			So(errors.Is(err, schema.ErrValidation), ShouldBeTrue)

			_, err = d.AddRow(ctx, "employees", map[string]string{"unknown_field": "x"})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

			ok, err := d.UpdateRow(ctx, "employees", id, map[string]string{"age": "thirty"})
			So(errors.Is(err, schema.ErrValidation), ShouldBeTrue)
			So(ok, ShouldBeFalse)

			So(d.GetRows(ctx, "employees"), ShouldHaveLength, 2)
			row, _ := d.GetRowByID(ctx, "employees", id)
			So(row.Values["age"], ShouldEqual, "30")
		})

		Convey("空值对所有类型都合法", func() {
			_, err := d.AddRow(ctx, "employees", map[string]string{"age": "", "email": "", "status": ""})
			So(err, ShouldBeNil)
		})

		Convey("空行被拒绝", func() {
			_, err := d.AddRow(ctx, "employees", map[string]string{})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			_, err = d.UpdateRow(ctx, "employees", id, nil)
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("更新", func() {
			ok, err := d.UpdateRow(ctx, "employees", id, map[string]string{"age": "31", "status": "inactive"})
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			row, err := d.GetRowByID(ctx, "employees", id)
			So(err, ShouldBeNil)
			So(row.Values["age"], ShouldEqual, "31")
			So(row.Values["status"], ShouldEqual, "inactive")
			So(row.Values["name"], ShouldEqual, "John Doe")

			ok, err = d.UpdateRow(ctx, "employees", 9999, map[string]string{"age": "1"})
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("删除", func() {
			ok, err := d.DeleteRow(ctx, "employees", id)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			row, err := d.GetRowByID(ctx, "employees", id)
			So(err, ShouldBeNil)
			So(row, ShouldBeNil)
			So(d.GetRows(ctx, "employees"), ShouldHaveLength, 1)

			ok, err = d.DeleteRow(ctx, "employees", id)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("未知表", func() {
			_, err := d.DeleteRow(ctx, "nope", 1)
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			_, err = d.GetRowByID(ctx, "nope", 1)
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			_, err = d.QueryRows(ctx, "nope")
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			So(d.DropTable(ctx, "nope"), ShouldNotBeNil)
		})

		Convey("重复建表只保留一个目录项", func() {
			So(d.CreateTable(ctx, employeesTable()), ShouldBeNil)
			So(d.Registry().TableNames(), ShouldResemble, []string{"employees"})
			So(d.GetRows(ctx, "employees"), ShouldHaveLength, 2)
		})

		Convey("被引用的枚举不能删除", func() {
			err := d.DropEnum(ctx, "status")
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			So(d.EnumDefinitions(), ShouldHaveLength, 1)

			So(d.DropTable(ctx, "employees"), ShouldBeNil)
			So(d.DropEnum(ctx, "status"), ShouldBeNil)
			So(d.EnumDefinitions(), ShouldBeEmpty)
		})

		Convey("ValidateRow 不访问存储", func() {
			So(d.ValidateRow("employees", map[string]string{"age": "42"}), ShouldBeNil)
			So(d.ValidateRow("employees", map[string]string{"age": "4.2"}), ShouldNotBeNil)
		})

		Convey("ValidateTableStructure", func() {
			So(d.ValidateTableStructure("nope"), ShouldBeFalse)

			So(d.CreateTable(ctx, &schema.TableDefinition{
				Name:   "orphan",
				Fields: []schema.FieldDefinition{{Name: "level", Type: schema.FieldTypeEnum, EnumName: "missing"}},
			}), ShouldBeNil)
			So(d.ValidateTableStructure("orphan"), ShouldBeFalse)
		})
	})
}

func TestTableNamesIgnoreCase(t *testing.T) {
	Convey("表名不区分大小写，一个目录项对应一张物理表", t, func() {
		ctx := context.Background()
		d := newTestDatabase(t)

		So(d.CreateTable(ctx, &schema.TableDefinition{
			Name:   "Emp",
			Fields: []schema.FieldDefinition{{Name: "x", Type: schema.FieldTypeString}},
		}), ShouldBeNil)
		_, err := d.AddRow(ctx, "Emp", map[string]string{"x": "1"})
		So(err, ShouldBeNil)

		Convey("字段不同的同名表被拒绝，原表和数据不变", func() {
			err := d.CreateTable(ctx, &schema.TableDefinition{
				Name:   "emp",
				Fields: []schema.FieldDefinition{{Name: "y", Type: schema.FieldTypeString}},
			})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			So(d.Registry().TableNames(), ShouldResemble, []string{"Emp"})

			rows, err := d.QueryRows(ctx, "Emp")
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
		})

		Convey("字段相同时替换定义并保留原有名称", func() {
			So(d.CreateTable(ctx, &schema.TableDefinition{
				Name:   "EMP",
				Fields: []schema.FieldDefinition{{Name: "X", Type: schema.FieldTypeInteger}},
			}), ShouldBeNil)
			So(d.Registry().TableNames(), ShouldResemble, []string{"Emp"})

			def, _ := d.Registry().LookupTable("emp")
			So(def.Fields[0].Type, ShouldEqual, schema.FieldTypeInteger)
		})

		Convey("任意大小写访问同一张表", func() {
			_, err := d.AddRow(ctx, "EMP", map[string]string{"x": "2"})
			So(err, ShouldBeNil)
			So(d.GetRows(ctx, "emp"), ShouldHaveLength, 2)

			row, err := d.GetRowByID(ctx, "eMp", 1)
			So(err, ShouldBeNil)
			So(row.Values, ShouldResemble, map[string]string{"x": "1"})

			So(d.DropTable(ctx, "emp"), ShouldBeNil)
			So(d.Registry().Len(), ShouldEqual, 0)
			_, err = d.QueryRows(ctx, "Emp")
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("只有大小写不同的字段名被拒绝", func() {
			err := d.CreateTable(ctx, &schema.TableDefinition{
				Name: "people",
				Fields: []schema.FieldDefinition{
					{Name: "Name", Type: schema.FieldTypeString},
					{Name: "name", Type: schema.FieldTypeString},
				},
			})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)
			So(d.Registry().TableNames(), ShouldResemble, []string{"Emp"})
		})
	})
}

// failingAdapter 对指定表的第 failAt 次写入返回存储错误
type failingAdapter struct {
	store.Adapter
	table   string
	failAt  int
	inserts int
}

func (a *failingAdapter) Insert(ctx context.Context, table string, values map[string]string) (int64, error) {
	if table == a.table {
		a.inserts++
		if a.inserts == a.failAt {
			return 0, errors.WithMessage(schema.ErrStorage, "insert failed")
		}
	}
	return a.Adapter.Insert(ctx, table, values)
}

func TestIntersectTablesPartialFailure(t *testing.T) {
	Convey("交集写入中途失败时已写入的行保留，后续行不再写入", t, func() {
		ctx := context.Background()
		adapter := &failingAdapter{Adapter: newTestDatabase(t).Adapter(), table: "intersect_a_b", failAt: 2}
		d := NewDatabaseWithAdapter("company", adapter, log.Discard())

		So(d.CreateTable(ctx, deptTable("a")), ShouldBeNil)
		So(d.CreateTable(ctx, deptTable("b")), ShouldBeNil)
		for _, dept := range []string{"IT", "HR", "QA"} {
			_, err := d.AddRow(ctx, "a", map[string]string{"dept": dept})
			So(err, ShouldBeNil)
			_, err = d.AddRow(ctx, "b", map[string]string{"dept": dept})
			So(err, ShouldBeNil)
		}

		_, err := d.IntersectTables(ctx, "a", "b", []string{"dept"})
		So(errors.Is(err, schema.ErrStorage), ShouldBeTrue)
		So(adapter.inserts, ShouldEqual, 2)

		rows, err := d.QueryRows(ctx, "intersect_a_b")
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 1)
		So(rows[0].Values, ShouldResemble, map[string]string{"dept": "IT"})

		Convey("重新执行时结果表重建", func() {
			name, err := d.IntersectTables(ctx, "a", "b", []string{"dept"})
			So(err, ShouldBeNil)
			So(d.GetRows(ctx, name), ShouldHaveLength, 3)
		})
	})
}

func TestGetRowsSuppressesErrors(t *testing.T) {
	Convey("读取失败时 GetRows 返回空结果，写入失败时报错", t, func() {
		ctx := context.Background()
		var buf bytes.Buffer
		l, err := logger.NewSLogWithWriter(&buf, &logger.SLogOptions{Level: "warn"})
		So(err, ShouldBeNil)

		sqlAdapter, err := store.NewSQLWithOptions(&store.SQLOptions{Driver: "sqlite3", Directory: t.TempDir(), Database: "broken"})
		So(err, ShouldBeNil)
		d := NewDatabaseWithAdapter("broken", sqlAdapter, l)
		So(d.Connect(ctx), ShouldBeNil)
		defer d.Disconnect()

		So(d.CreateTable(ctx, deptTable("teams")), ShouldBeNil)
		// 绕过目录直接删除物理表
		So(sqlAdapter.DropTable(ctx, "teams"), ShouldBeNil)

		rows := d.GetRows(ctx, "teams")
		So(rows, ShouldNotBeNil)
		So(rows, ShouldBeEmpty)
		So(buf.String(), ShouldContainSubstring, "get rows failed")

		_, err = d.QueryRows(ctx, "teams")
		So(errors.Is(err, schema.ErrStorage), ShouldBeTrue)

		_, err = d.AddRow(ctx, "teams", map[string]string{"dept": "IT"})
		So(errors.Is(err, schema.ErrStorage), ShouldBeTrue)
		var serr *store.StorageError
		So(errors.As(err, &serr), ShouldBeTrue)
		So(serr.Table, ShouldEqual, "teams")

		Convey("未知表同样返回空结果", func() {
			So(d.GetRows(ctx, "nope"), ShouldBeEmpty)
		})

		Convey("未连接同样返回空结果", func() {
			So(d.Disconnect(), ShouldBeNil)
			So(d.GetRows(ctx, "teams"), ShouldBeEmpty)
		})
	})
}

func TestIntersectTables(t *testing.T) {
	Convey("测试表交集", t, func() {
		ctx := context.Background()
		d := newTestDatabase(t)

		So(d.CreateTable(ctx, deptTable("a")), ShouldBeNil)
		So(d.CreateTable(ctx, deptTable("b")), ShouldBeNil)
		for _, dept := range []string{"IT", "HR", "IT"} {
			_, err := d.AddRow(ctx, "a", map[string]string{"dept": dept})
			So(err, ShouldBeNil)
			_, err = d.AddRow(ctx, "b", map[string]string{"dept": dept})
			So(err, ShouldBeNil)
		}

		Convey("重复匹配只产生一行", func() {
			name, err := d.IntersectTables(ctx, "a", "b", []string{"dept"})
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "intersect_a_b")

			rows := d.GetRows(ctx, name)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Values, ShouldResemble, map[string]string{"dept": "IT"})
			So(rows[1].Values, ShouldResemble, map[string]string{"dept": "HR"})

			def, ok := d.Registry().LookupTable(name)
			So(ok, ShouldBeTrue)
			So(def.Fields, ShouldResemble, []schema.FieldDefinition{{Name: "dept", Type: schema.FieldTypeString}})

			Convey("重复执行结果不变", func() {
				name, err := d.IntersectTables(ctx, "a", "b", []string{"dept"})
				So(err, ShouldBeNil)
				So(d.GetRows(ctx, name), ShouldHaveLength, 2)
				So(d.Registry().TableNames(), ShouldResemble, []string{"a", "b", "intersect_a_b"})
			})
		})

		Convey("字段类型取自第一张表", func() {
			So(d.CreateTable(ctx, &schema.TableDefinition{
				Name: "people",
				Fields: []schema.FieldDefinition{
					{Name: "dept", Type: schema.FieldTypeString},
					{Name: "age", Type: schema.FieldTypeInteger},
				},
			}), ShouldBeNil)
			So(d.CreateTable(ctx, &schema.TableDefinition{
				Name: "ages",
				Fields: []schema.FieldDefinition{
					{Name: "dept", Type: schema.FieldTypeString},
					{Name: "age", Type: schema.FieldTypeString},
				},
			}), ShouldBeNil)
			_, err := d.AddRow(ctx, "people", map[string]string{"dept": "IT", "age": "30"})
			So(err, ShouldBeNil)
			_, err = d.AddRow(ctx, "ages", map[string]string{"dept": "IT", "age": "30"})
			So(err, ShouldBeNil)
			_, err = d.AddRow(ctx, "ages", map[string]string{"dept": "IT", "age": "31"})
			So(err, ShouldBeNil)

			name, err := d.IntersectTables(ctx, "people", "ages", []string{"age", "dept"})
			So(err, ShouldBeNil)
			def, _ := d.Registry().LookupTable(name)
			So(def.FieldNames(), ShouldResemble, []string{"age", "dept"})
			So(def.Fields[0].Type, ShouldEqual, schema.FieldTypeInteger)

			rows := d.GetRows(ctx, name)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Values, ShouldResemble, map[string]string{"dept": "IT", "age": "30"})
		})

		Convey("缺失值只与缺失值匹配", func() {
			for _, name := range []string{"x", "y"} {
				So(d.CreateTable(ctx, &schema.TableDefinition{
					Name: name,
					Fields: []schema.FieldDefinition{
						{Name: "dept", Type: schema.FieldTypeString},
						{Name: "name", Type: schema.FieldTypeString},
					},
				}), ShouldBeNil)
			}
			_, err := d.AddRow(ctx, "x", map[string]string{"name": "Ann"})
			So(err, ShouldBeNil)
			_, err = d.AddRow(ctx, "y", map[string]string{"dept": ""})
			So(err, ShouldBeNil)
			_, err = d.AddRow(ctx, "y", map[string]string{"name": "Bob"})
			So(err, ShouldBeNil)

			name, err := d.IntersectTables(ctx, "x", "y", []string{"dept"})
			So(err, ShouldBeNil)
			rows := d.GetRows(ctx, name)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Values, ShouldBeEmpty)
		})

		Convey("参数错误不修改任何数据", func() {
			_, err := d.IntersectTables(ctx, "a", "b", nil)
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

			_, err = d.IntersectTables(ctx, "a", "missing", []string{"dept"})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

			_, err = d.IntersectTables(ctx, "missing", "b", []string{"dept"})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

			_, err = d.IntersectTables(ctx, "a", "b", []string{"salary"})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

			_, err = d.IntersectTables(ctx, "a", "b", []string{"dept", "dept"})
			So(errors.Is(err, schema.ErrInvalidArgument), ShouldBeTrue)

			So(d.Registry().TableNames(), ShouldResemble, []string{"a", "b"})
		})

		Convey("未连接", func() {
			So(d.Disconnect(), ShouldBeNil)
			_, err := d.IntersectTables(ctx, "a", "b", []string{"dept"})
			So(errors.Is(err, schema.ErrNotConnected), ShouldBeTrue)
		})
	})
}

func TestSaveAndLoad(t *testing.T) {
	Convey("测试模式保存和加载", t, func() {
		ctx := context.Background()
		d := newTestDatabase(t)
		_, err := d.DefineEnum(ctx, "status", []string{"active", "inactive"})
		So(err, ShouldBeNil)
		So(d.CreateTable(ctx, employeesTable()), ShouldBeNil)
		So(d.CreateTable(ctx, deptTable("teams")), ShouldBeNil)

		for _, ext := range []string{".json", ".yaml", ".msgpack"} {
			path := filepath.Join(t.TempDir(), "company.schema"+ext)
			So(d.SaveToDisk(path), ShouldBeNil)

			loaded := newTestDatabase(t)
			So(loaded.LoadFromDisk(ctx, path), ShouldBeNil)
			So(loaded.Name(), ShouldEqual, "company")
			So(loaded.Tables(), ShouldResemble, d.Tables())
			So(loaded.EnumDefinitions(), ShouldResemble, d.EnumDefinitions())

			// 加载后表已在存储中创建，可以直接写入
			_, err := loaded.AddRow(ctx, "employees", map[string]string{"status": "active"})
			So(err, ShouldBeNil)
			_, err = loaded.AddRow(ctx, "employees", map[string]string{"status": "pending"})
			So(errors.Is(err, schema.ErrValidation), ShouldBeTrue)
		}

		Convey("文件不存在或格式错误时保持原状", func() {
			err := d.LoadFromDisk(ctx, filepath.Join(t.TempDir(), "missing.json"))
			So(err, ShouldNotBeNil)
			So(d.Tables(), ShouldHaveLength, 2)
		})
	})
}
