package slug

import "strings"

// 公开 URL 必须可预测，因此不做任何自动加后缀的去重；
// 冲突时由调用方换一个候选。

const maxLength = 100

// Normalize 将候选标识转为规范 slug：小写、去除 [a-z0-9-] 之外的字符、
// 折叠多余分隔符、去掉首尾连字符。空白与下划线视为分隔符。
func Normalize(candidate string) string {
	lower := strings.ToLower(strings.TrimSpace(candidate))

	var b strings.Builder
	b.Grow(len(lower))
	lastDash := true // 抑制开头的连字符
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == ' ' || r == '_' || r == '.':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		default:
			// 其余字符直接丢弃，不产生分隔。
		}
	}

	s := strings.TrimRight(b.String(), "-")
	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}
	return s
}

// IsValid 判断字符串是否已是规范形式的非空 slug。
func IsValid(s string) bool {
	return s != "" && s == Normalize(s)
}
