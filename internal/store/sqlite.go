package store

import (
	"bytes"
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// sqliteDriver is go-sqlite3 with lower() replaced by a Unicode-aware
// version. The built-in only folds ASCII, so LOWER(col) LIKE LOWER(?)
// would miss "Ærø" for "ærø".
const sqliteDriver = "sqlite3_qgraph"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

// unicodeLower folds TEXT and BLOB values. NULL arrives as a nil []byte
// and stays NULL; numbers pass through.
func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		if s == nil {
			return nil
		}
		return bytes.ToLower(s)
	default:
		return v
	}
}
