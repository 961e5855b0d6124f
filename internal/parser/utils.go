package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	decimalRe    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// NormalizeColumnName 规范化列名：去首尾空白，换行制表符视为空格，压缩连续空白
func NormalizeColumnName(name string) string {
	name = strings.TrimSpace(name)
	return whitespaceRe.ReplaceAllString(name, " ")
}

// FoldText 小写并去除重音，"Categoría" 与 "categoria" 折叠为同一形式
func FoldText(s string) string {
	s = strings.ToLower(NormalizeColumnName(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// ContainsAny 检查字符串是否包含任意一个关键词
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// EqualsAny 检查字符串是否等于任意一个关键词
func EqualsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if text == kw {
			return true
		}
	}
	return false
}

// IsNumeric 十进制数字（允许千分位逗号与小数）
func IsNumeric(s string) bool {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return decimalRe.MatchString(s)
}

// ParseLeadingInt 解析开头的十进制整数："12" → 12，"12.5" → 12，"1,200" → 1200
func ParseLeadingInt(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	end := 0
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
