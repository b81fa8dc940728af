package bpfsverify

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// AffectedIndex 记录身份哈希与影响它的交易之间的关系
type AffectedIndex struct {
	db *SqliteDB
}

// NewAffectedIndex 在数据库上建立受影响身份索引
func NewAffectedIndex(db *SqliteDB) (*AffectedIndex, error) {
	if err := db.InitDBTable(); err != nil {
		return nil, err
	}
	return &AffectedIndex{db: db}, nil
}

// Index 保存交易影响的全部身份，重复记录被忽略
func (a *AffectedIndex) Index(txHash chainhash.Hash, identities map[string][]byte) error {
	for id := range identities {
		data := map[string]interface{}{
			"identity": id,              // 身份哈希
			"txHash":   txHash.String(), // 交易哈希
		}
		if err := a.db.Insert(affectedTable, data); err != nil {
			return fmt.Errorf("数据库操作失败: %w", err)
		}
	}
	return nil
}

// Find 返回影响某个身份的全部交易
func (a *AffectedIndex) Find(identity []byte) ([]chainhash.Hash, error) {
	conditions := []string{"identity=?"}
	args := []interface{}{hex.EncodeToString(identity)}
	values, err := a.db.Select(affectedTable, "txHash", conditions, args)
	if err != nil {
		return nil, fmt.Errorf("数据库操作失败: %w", err)
	}

	hashes := make([]chainhash.Hash, 0, len(values))
	for _, v := range values {
		h, err := chainhash.NewHashFromStr(v)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, *h)
	}
	return hashes, nil
}

// Exists 判断某个身份与交易的关系是否已记录
func (a *AffectedIndex) Exists(identity []byte, txHash chainhash.Hash) (bool, error) {
	conditions := []string{"identity=?", "txHash=?"}
	args := []interface{}{hex.EncodeToString(identity), txHash.String()}
	exists, err := a.db.Exists(affectedTable, conditions, args)
	if err != nil {
		return exists, fmt.Errorf("数据库操作失败: %w", err)
	}
	return exists, nil
}
