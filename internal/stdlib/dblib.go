package stdlib

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

// dbManager tracks named *sql.DB handles across db.open/db.query/db.close
// calls, mirroring the teacher's connection-id-keyed registry.
type dbManager struct {
	mu    sync.RWMutex
	conns map[string]*sql.DB
}

var dbMgr = &dbManager{conns: make(map[string]*sql.DB)}

func (m *dbManager) connect(id, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	m.mu.Lock()
	if old, ok := m.conns[id]; ok {
		old.Close()
	}
	m.conns[id] = db
	m.mu.Unlock()
	return nil
}

func (m *dbManager) get(id string) (*sql.DB, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.conns[id]
	return db, ok
}

func (m *dbManager) close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.conns[id]
	if !ok {
		return nil
	}
	delete(m.conns, id)
	return db.Close()
}

// registerDB installs the `db` module table (§11): open/close/query/execute
// dispatch to whichever blank-imported driver matches the connect() call.
func registerDB(v *vm.VM) {
	t := newModuleTable(v, "db")
	t.fn("open", 2, false, nativeDBConnect)
	t.fn("close", 1, false, nativeDBClose)
	t.fn("query", 2, true, nativeDBQuery)
	t.fn("execute", 2, true, nativeDBExecute)
}

// schemeDrivers maps a DSN's leading scheme to the registered database/sql
// driver name that handles it, so db.open(id, dsn) never asks the caller to
// name a driver separately.
var schemeDrivers = map[string]string{
	"sqlite3":    "sqlite3",
	"sqlite":     "sqlite",
	"file":       "sqlite3",
	"mysql":      "mysql",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"sqlserver":  "sqlserver",
}

func driverForDSN(dsn string) (driver, rest string, err error) {
	idx := strings.Index(dsn, "://")
	if idx < 0 {
		return "", "", typeErr("db.open", "dsn %q has no scheme prefix", dsn)
	}
	scheme := dsn[:idx]
	driver, ok := schemeDrivers[scheme]
	if !ok {
		return "", "", typeErr("db.open", "unrecognized dsn scheme %q", scheme)
	}
	return driver, dsn[idx+len("://"):], nil
}

// db.open(id, dsn) dispatches on the dsn's scheme (sqlite3://, sqlite://,
// mysql://, postgres://, sqlserver://) to the matching blank-imported driver.
func nativeDBConnect(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	id, err := wantString("db.open", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	dsn, err := wantString("db.open", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	driver, rest, err := driverForDSN(dsn)
	if err != nil {
		return value.Nil(), err
	}
	if err := dbMgr.connect(id, driver, rest); err != nil {
		return value.Nil(), err
	}
	return value.Bool(true), nil
}

func nativeDBClose(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	id, err := wantString("db.close", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	if err := dbMgr.close(id); err != nil {
		return value.Nil(), err
	}
	return value.Bool(true), nil
}

// db.query(id, sql, ...binds) returns a list of row maps, column name to
// value.
func nativeDBQuery(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Nil(), argErr("db.query", "expects at least a connection id and a query")
	}
	id, err := wantString("db.query", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	query, err := wantString("db.query", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	db, ok := dbMgr.get(id)
	if !ok {
		return value.Nil(), typeErr("db.query", "no open connection %q", id)
	}

	binds := toSQLArgs(args[2:])
	rows, err := db.Query(query, binds...)
	if err != nil {
		return value.Nil(), err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return value.Nil(), err
	}

	result := ctx.NewList(0)
	list := result.AsListObj()
	scratch := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range scratch {
		ptrs[i] = &scratch[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return value.Nil(), err
		}
		rowVal := ctx.NewMap(len(cols))
		rowMap := rowVal.AsMapObj()
		for i, col := range cols {
			rowMap.Put(ctx.NewString(col), sqlToValue(ctx, scratch[i]))
		}
		list.Elements = append(list.Elements, rowVal)
	}
	return result, rows.Err()
}

// db.execute(id, sql, ...binds) returns the number of affected rows.
func nativeDBExecute(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Nil(), argErr("db.execute", "expects at least a connection id and a query")
	}
	id, err := wantString("db.execute", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	query, err := wantString("db.execute", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	db, ok := dbMgr.get(id)
	if !ok {
		return value.Nil(), typeErr("db.execute", "no open connection %q", id)
	}
	res, err := db.Exec(query, toSQLArgs(args[2:])...)
	if err != nil {
		return value.Nil(), err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return value.Nil(), err
	}
	return value.Int(affected), nil
}

func toSQLArgs(args []value.Value) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch {
		case a.IsString():
			out[i] = a.AsString()
		case a.IsInt():
			out[i] = a.AsInt()
		case a.IsFloat():
			out[i] = a.AsFloat()
		case a.IsBool():
			out[i] = a.AsBool()
		case a.IsNil():
			out[i] = nil
		default:
			out[i] = a.String()
		}
	}
	return out
}

func sqlToValue(ctx value.NativeContext, v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Nil()
	case []byte:
		return ctx.NewString(string(t))
	case string:
		return ctx.NewString(t)
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case bool:
		return value.Bool(t)
	default:
		return ctx.NewString(fmt.Sprintf("%v", t))
	}
}
