// 原始交易文件的读写

package bpfsverify

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/spf13/afero"
)

// FileStore 封装了交易文件的存储操作
type FileStore struct {
	Fs       afero.Fs
	BasePath string
}

// NewFileStore 创建一个新的FileStore实例
func NewFileStore(fs afero.Fs, basePath string) (*FileStore, error) {
	if err := fs.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileStore{Fs: fs, BasePath: basePath}, nil
}

// WriteTransaction 以十六进制文本保存交易，文件名为交易哈希
func (fs *FileStore) WriteTransaction(tx *wire.Transaction) (string, error) {
	name := tx.Hash().String() + ".hex"
	filePath := filepath.Join(fs.BasePath, name)
	if err := afero.WriteFile(fs.Fs, filePath, []byte(hex.EncodeToString(tx.Bytes())), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return name, nil
}

// ReadTransaction 读取交易文件，内容可以是十六进制文本或原始字节
func (fs *FileStore) ReadTransaction(name string) (*wire.Transaction, error) {
	data, err := afero.ReadFile(fs.Fs, filepath.Join(fs.BasePath, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DecodeTransaction(data)
}

// List 按文件名顺序返回全部交易文件
func (fs *FileStore) List() ([]string, error) {
	infos, err := afero.ReadDir(fs.Fs, fs.BasePath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DecodeTransaction 解码十六进制文本或原始字节形式的交易
func DecodeTransaction(data []byte) (*wire.Transaction, error) {
	trimmed := bytes.TrimSpace(data)
	if raw, err := hex.DecodeString(string(trimmed)); err == nil {
		return wire.FromBytes(raw)
	}
	return wire.FromBytes(data)
}
