package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Fingerprint 内容指纹。主题和正文折叠空白，收件人去掉大小写差异并排序，
// 所以同一次发送无论从哪条路径上报，指纹都相同
func Fingerprint(subject, body string, recipients []string) string {
	addrs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			addrs = append(addrs, r)
		}
	}
	slices.Sort(addrs)
	addrs = slices.Compact(addrs)

	h := sha256.New()
	// 用不可见字符分隔，避免 "ab"+"c" 和 "a"+"bc" 相同
	h.Write([]byte(normalize(subject)))
	h.Write([]byte{0x1f})
	h.Write([]byte(normalize(body)))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.Join(addrs, "\x1e")))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
