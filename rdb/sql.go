package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLOptions struct {
	// 驱动名，informix 驱动需要由调用方注册，并通过 DSN 指定连接串
	Driver   string `cfg:"driver" def:"informix"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port" def:"9088"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	MaxConns int    `cfg:"maxConns" def:"2"`
	MaxIdle  int    `cfg:"maxIdle" def:"1"`
}

// DataSourceName 未指定 DSN 时按驱动拼接
func (o *SQLOptions) DataSourceName() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch o.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=True&loc=Local",
			o.Username, o.Password, o.Host, o.Port, o.Database), nil
	case "sqlite3":
		return o.Database, nil
	}
	return "", errors.Errorf("dsn is required for driver %q", o.Driver)
}

// SQLConnection 基于 database/sql 的 Connection 实现
//
// 所有语句都在同一个 *sql.Conn 上执行，保证 BEGIN WORK 和 COMMIT WORK 落在同一个会话
type SQLConnection struct {
	mu     sync.Mutex
	db     *sql.DB
	conn   *sql.Conn
	ownsDB bool
}

func NewSQLConnectionWithOptions(options *SQLOptions) (*SQLConnection, error) {
	dsn, err := options.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open failed. driver: %s", options.Driver)
	}
	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxIdle)

	c, err := NewSQLConnection(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

// NewSQLConnection 从已有的 *sql.DB 取出一个专用连接，Close 时只归还连接
func NewSQLConnection(ctx context.Context, db *sql.DB) (*SQLConnection, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "db.Conn failed")
	}
	return &SQLConnection{db: db, conn: conn}, nil
}

func (c *SQLConnection) Execute(ctx context.Context, query string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrConnectionClosed
	}
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

func (c *SQLConnection) ExecuteQuery(ctx context.Context, query string) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrConnectionClosed
	}

	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, "rows.ColumnTypes failed")
	}
	names := make([]string, len(columnTypes))
	padded := make([]bool, len(columnTypes))
	for i, ct := range columnTypes {
		names[i] = strings.ToLower(ct.Name())
		typeName, _, _ := strings.Cut(strings.ToUpper(ct.DatabaseTypeName()), "(")
		switch strings.TrimSpace(typeName) {
		case "CHAR", "NCHAR":
			padded[i] = true
		}
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(names))
		pointers := make([]any, len(names))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}

		row := make(Row, len(names))
		for i, name := range names {
			row[name] = normalizeValue(values[i], padded[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// normalizeValue []byte 转为 string，CHAR 列去掉右侧填充的空格
func normalizeValue(v any, padded bool) any {
	switch x := v.(type) {
	case []byte:
		s := string(x)
		if padded {
			s = strings.TrimRight(s, " ")
		}
		return s
	case string:
		if padded {
			return strings.TrimRight(x, " ")
		}
	}
	return v
}

func (c *SQLConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if c.ownsDB {
		if dbErr := c.db.Close(); err == nil {
			err = dbErr
		}
	}
	return err
}
