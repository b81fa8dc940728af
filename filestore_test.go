package bpfsverify

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(fs, "/import")
	require.NoError(t, err)

	key := testKey(t, 0)
	a := fundingTx(t, key, 100)
	b := fundingTx(t, key, 200)

	nameA, err := store.WriteTransaction(a)
	require.NoError(t, err)
	assert.Equal(t, a.Hash().String()+".hex", nameA)
	_, err = store.WriteTransaction(b)
	require.NoError(t, err)

	// 原始字节形式的交易
	require.NoError(t, afero.WriteFile(fs, "/import/raw.bin", b.Bytes(), 0644))

	names, err := store.List()
	require.NoError(t, err)
	assert.Len(t, names, 3)

	got, err := store.ReadTransaction(nameA)
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), got.Hash())

	got, err = store.ReadTransaction("raw.bin")
	require.NoError(t, err)
	assert.Equal(t, b.Hash(), got.Hash())

	_, err = store.ReadTransaction("absent.hex")
	assert.Error(t, err)
}

func TestDecodeTransaction(t *testing.T) {
	tx := fundingTx(t, testKey(t, 0), 100)

	got, err := DecodeTransaction([]byte(" " + hexOf(tx) + "\n"))
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), got.Hash())

	_, err = DecodeTransaction([]byte("zz"))
	assert.Error(t, err)
}
