package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/hatlonely/tabdb/schema"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func renderEnums(w io.Writer, enums []*schema.EnumDefinition) {
	t := newTable(w, table.Row{"Enum", "Values"})
	for _, e := range enums {
		t.AppendRow(table.Row{e.Name, strings.Join(e.Values, ", ")})
	}
	t.Render()
}

func renderTables(w io.Writer, tables []*schema.TableDefinition) {
	t := newTable(w, table.Row{"Table", "Fields"})
	for _, def := range tables {
		fields := make([]string, 0, len(def.Fields))
		for _, f := range def.Fields {
			fields = append(fields, formatField(f))
		}
		t.AppendRow(table.Row{def.Name, strings.Join(fields, ", ")})
	}
	t.Render()
}

func formatField(f schema.FieldDefinition) string {
	if f.EnumName != "" {
		return f.Name + ":" + f.Type.String() + ":" + f.EnumName
	}
	return f.Name + ":" + f.Type.String()
}

// renderRows 缺失的值显示为空
func renderRows(w io.Writer, def *schema.TableDefinition, rows []schema.Row) {
	header := table.Row{schema.IDColumn}
	for _, name := range def.FieldNames() {
		header = append(header, name)
	}
	t := newTable(w, header)
	for _, row := range rows {
		r := table.Row{strconv.FormatInt(row.ID, 10)}
		for _, v := range row.Project(def.FieldNames()) {
			r = append(r, v)
		}
		t.AppendRow(r)
	}
	t.Render()
}
