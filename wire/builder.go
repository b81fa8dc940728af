package wire

// Builder 用于逐步组装交易。Build 之后得到的 Transaction 不再可变。
type Builder struct {
	version  int32
	lockTime uint32
	txIn     []TxIn
	txOut    []TxOut
}

// NewBuilder 返回一个使用默认版本的构建器。
func NewBuilder() *Builder {
	return &Builder{version: TxVersion}
}

// Builder 返回一个以当前交易内容为起点的构建器。
func (tx *Transaction) Builder() *Builder {
	return &Builder{
		version:  tx.version,
		lockTime: tx.lockTime,
		txIn:     tx.Inputs(),
		txOut:    tx.Outputs(),
	}
}

// SetVersion 设置交易版本。
func (b *Builder) SetVersion(v int32) *Builder {
	b.version = v
	return b
}

// SetLockTime 设置锁定时间。
func (b *Builder) SetLockTime(l uint32) *Builder {
	b.lockTime = l
	return b
}

// AddTxIn 追加一个输入。
func (b *Builder) AddTxIn(ti *TxIn) *Builder {
	b.txIn = append(b.txIn, *ti)
	return b
}

// AddTxOut 追加一个输出。
func (b *Builder) AddTxOut(to *TxOut) *Builder {
	b.txOut = append(b.txOut, *to)
	return b
}

// SetSignatureScript 替换第 i 个输入的解锁脚本。
func (b *Builder) SetSignatureScript(i int, script []byte) *Builder {
	b.txIn[i].SignatureScript = script
	return b
}

// Build 返回组装好的不可变交易。
func (b *Builder) Build() *Transaction {
	return NewTransaction(b.version, b.txIn, b.txOut, b.lockTime)
}
