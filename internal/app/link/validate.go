package link

import "strings"

// EnsureHTTPPrefix 保证目标 URL 带显式 scheme。
// 用户常直接粘贴 "example.com"，缺 scheme 的 Location 头会被浏览器
// 当成相对路径跳转，所以创建时统一补 "http://"。
func EnsureHTTPPrefix(url string) string {
	if strings.Contains(url, "://") {
		return url
	}
	return "http://" + url
}

// isURLSafe 短码字符集：RFC 3986 unreserved。
func isURLSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == '~':
		return true
	}
	return false
}

// SanitizeID 把自定义短码清洗成 URL 安全的字符串：非法字符直接丢弃。
//
// 设计原因：
// - 自定义短码出现在路径段里，保留非法字符会导致路由歧义或需要转义
// - 丢弃而不是报错：和长度校验不同，字符问题可以无损地替调用方修正
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if isURLSafe(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
