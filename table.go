package bpfsverify

import "fmt"

const (
	DbFile = "database.db"

	affectedTable = "affected"
)

// InitDBTable 数据库表
func (s *SqliteDB) InitDBTable() error {
	// 创建受影响身份表
	if err := s.createAffectedTable(); err != nil {
		return err
	}

	return nil
}

// createAffectedTable 创建受影响身份表
func (s *SqliteDB) createAffectedTable() error {
	table := []string{
		"id INTEGER PRIMARY KEY AUTOINCREMENT", // 自增长主键
		"identity VARCHAR(40) NOT NULL",        // 身份哈希（十六进制）
		"txHash VARCHAR(64) NOT NULL",          // 交易哈希
		"UNIQUE(identity, txHash)",
	}

	// 创建表
	if err := s.CreateTable(affectedTable, table); err != nil {
		return fmt.Errorf("创建表 %s 失败: %w", affectedTable, err)
	}
	if err := s.CreateIndex(affectedTable, "idx_affected_identity", []string{"identity"}); err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}

	return nil
}
