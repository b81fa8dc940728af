package bpfsverify

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteDB 是业务数据库的封装
type SqliteDB struct {
	DB *sql.DB
}

// NewSqliteDB 打开 dir 下的数据库文件，dir 为空时使用内存数据库
func NewSqliteDB(dir, file string) (*SqliteDB, error) {
	dsn := ":memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, file)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite 只允许一个写者，内存数据库在每个连接上都是独立的
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteDB{DB: db}, nil
}

// Close 关闭数据库
func (s *SqliteDB) Close() error {
	return s.DB.Close()
}

// CreateTable 创建表，表已存在时不做任何操作
func (s *SqliteDB) CreateTable(name string, columns []string) error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(columns, ", "))
	_, err := s.DB.Exec(query)
	return err
}

// CreateIndex 在表的列上创建索引
func (s *SqliteDB) CreateIndex(table, name string, columns []string) error {
	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(columns, ", "))
	_, err := s.DB.Exec(query)
	return err
}

// Insert 插入一行，data 为列名到值的映射
func (s *SqliteDB) Insert(table string, data map[string]interface{}) error {
	cols := make([]string, 0, len(data))
	marks := make([]string, 0, len(data))
	args := make([]interface{}, 0, len(data))
	for k, v := range data {
		cols = append(cols, k)
		marks = append(marks, "?")
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	_, err := s.DB.Exec(query, args...)
	return err
}

// Exists 判断满足全部条件的行是否存在
func (s *SqliteDB) Exists(table string, conditions []string, args []interface{}) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s%s)", table, where(conditions))
	var exists bool
	if err := s.DB.QueryRow(query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Select 查询满足全部条件的行的一列
func (s *SqliteDB) Select(table, column string, conditions []string, args []interface{}) ([]string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s%s", column, table, where(conditions))
	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
