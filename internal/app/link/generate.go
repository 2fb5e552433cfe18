package link

import (
	"crypto/rand"
	"math/big"
)

// idAlphabet 短码字母表：62 个 URL 安全字符。
// 随机性只从这里进入系统（见 repo 的分配逻辑）。
const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandomID 生成一个定长随机短码。
// 用 crypto/rand 而不是 math/rand：短码可被枚举猜测，弱随机源会让
// 猜测成本大幅下降。
func RandomID(length int) string {
	b := make([]byte, length)
	n := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		v, _ := rand.Int(rand.Reader, n)
		b[i] = idAlphabet[v.Int64()]
	}
	return string(b)
}
