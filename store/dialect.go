package store

import (
	"strings"
)

// dialect 各数据库在 DDL 和标识符引用上的差异
type dialect struct {
	name        string
	quote       string
	idColumn    string
	tableSuffix string
	emptyInsert string
}

var dialects = map[string]*dialect{
	"sqlite3": {
		name:        "sqlite3",
		quote:       `"`,
		idColumn:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		emptyInsert: "DEFAULT VALUES",
	},
	"mysql": {
		name:        "mysql",
		quote:       "`",
		idColumn:    "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
		tableSuffix: " DEFAULT CHARSET=utf8mb4",
		emptyInsert: "() VALUES ()",
	},
}

func (d *dialect) quoteIdent(name string) string {
	return d.quote + strings.ReplaceAll(name, d.quote, d.quote+d.quote) + d.quote
}

func (d *dialect) quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func (d *dialect) createTableSQL(table string, columns []string) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, d.quoteIdent("id")+" "+d.idColumn)
	for _, c := range columns {
		defs = append(defs, d.quoteIdent(c)+" TEXT")
	}
	return "CREATE TABLE IF NOT EXISTS " + d.quoteIdent(table) + " (" + strings.Join(defs, ", ") + ")" + d.tableSuffix
}

func (d *dialect) dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.quoteIdent(table)
}

func (d *dialect) insertSQL(table string, columns []string) string {
	if len(columns) == 0 {
		return "INSERT INTO " + d.quoteIdent(table) + " " + d.emptyInsert
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return "INSERT INTO " + d.quoteIdent(table) + " (" + d.quoteIdents(columns) + ") VALUES (" + placeholders + ")"
}

// updateSQL 没有列时 SET id = id，仍然可以通过影响行数判断 id 是否存在
func (d *dialect) updateSQL(table string, columns []string) string {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		sets = append(sets, d.quoteIdent(c)+" = ?")
	}
	if len(sets) == 0 {
		sets = append(sets, d.quoteIdent("id")+" = "+d.quoteIdent("id"))
	}
	return "UPDATE " + d.quoteIdent(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + d.quoteIdent("id") + " = ?"
}

func (d *dialect) deleteSQL(table string) string {
	return "DELETE FROM " + d.quoteIdent(table) + " WHERE " + d.quoteIdent("id") + " = ?"
}

func (d *dialect) selectSQL(table string, columns []string, byID bool) string {
	cols := d.quoteIdent("id")
	if len(columns) > 0 {
		cols += ", " + d.quoteIdents(columns)
	}
	sql := "SELECT " + cols + " FROM " + d.quoteIdent(table)
	if byID {
		return sql + " WHERE " + d.quoteIdent("id") + " = ?"
	}
	return sql + " ORDER BY " + d.quoteIdent("id")
}
