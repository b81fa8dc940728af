// 包含 txscript 包的文档说明。

/*
txscript 包实现了交易脚本语言及其执行引擎。

# 脚本概述

交易脚本是用基于堆栈、类似 FORTH 的语言编写的，从左到右处理，并且故意不提供循环。
每个输入的解锁脚本先执行，随后在同一个主栈上执行被花费输出的锁定脚本，
执行完毕后栈顶元素为 true 即表示该输入被授权花费。

堆栈上的元素是字节数组；作为数值读取时按小端序二进制补码解释为任意精度整数，
运算结果以最短形式重新编码。比较和布尔运算压入单字节 0x01 或 0x00。

字符串、位运算以及扩展算术操作码（OP_CAT、OP_MUL、OP_LSHIFT 等）默认禁用，
只要出现在指令流中就会失败，即使位于未执行的分支中；ScriptAllowDisabledOpcodes 标志可以启用它们。
OP_CHECKMULTISIG 与 OP_CHECKMULTISIGVERIFY 会弹出全部操作数，但总是失败。

# 签名

CalcSignatureHash 按 SigHashAll、SigHashNone、SigHashSingle 以及 SigHashAnyOneCanPay 位屏蔽交易副本，
序列化后追加 4 字节小端序哈希类型并计算双重 SHA256。
SignatureScript 与 SignTxOutput 为支付到公钥哈希和支付到公钥的输出生成解锁脚本。

# 错误

执行引擎内部返回的错误类型为 txscript.Error。
调用者可以检查 ErrorCode 字段以编程方式确定特定错误，IsErrorCode 提供了便捷的判断方式。
VerifyScript 不会向调用方传播任何错误，所有失败均以 Debug 级别记录并返回 false。
*/
package txscript
