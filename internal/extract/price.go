package extract

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	// 60万, 60万円, 600,000円, 55~60万 (the first numeral of a range wins)
	unitFigure = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)(?:\s*[~〜～\-－]\s*\d[\d,]*(?:\.\d+)?)?\s*(万円|万|円)`)
	// 単価：600000
	keywordFigure = regexp.MustCompile(`(?:単価|時給|月給|月額|年収|報酬|給与)[^\d\n]{0,12}(\d[\d,]*(?:\.\d+)?)`)

	// Figures followed by one of these count something other than money.
	counters = []string{"回", "名", "人", "歳", "才", "件", "社", "日", "年", "ヶ月", "ヵ月", "ｶ月", "か月", "時間", "h", "H", "%"}
	// Unit figures shortly after one of these are not rewards.
	nonReward = []string{"資本金", "交通費", "売上", "従業員", "設立", "残業"}
)

const nonRewardWindow = 10

// ScanPrice finds the reward figure in body. A figure attached to a reward
// keyword wins; otherwise the first 万 or 円 figure outside a non-reward context
// is used. Figures written with 万 are returned as the numeral before it, so
// both forms come back unexpanded; 円 and bare figures are already absolute.
// ok is false when the body has no reward figure.
func ScanPrice(body string) (price int, ok bool) {
	text := width.Narrow.String(body)

	for _, m := range keywordFigure.FindAllStringSubmatchIndex(text, -1) {
		if followedByCounter(text[m[3]:]) {
			continue
		}
		if value, parsed := parseFigure(text[m[2]:m[3]]); parsed {
			return value, true
		}
	}

	for _, m := range unitFigure.FindAllStringSubmatchIndex(text, -1) {
		if inNonRewardContext(text[:m[0]]) {
			continue
		}
		if value, parsed := parseFigure(text[m[2]:m[3]]); parsed {
			return value, true
		}
	}

	return 0, false
}

func followedByCounter(rest string) bool {
	rest = strings.TrimLeft(rest, " ")
	for _, c := range counters {
		if strings.HasPrefix(rest, c) {
			return true
		}
	}
	return false
}

// inNonRewardContext reports whether the few runes before a figure on the same
// line name a non-reward amount.
func inNonRewardContext(before string) bool {
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		before = before[i+1:]
	}
	if runes := []rune(before); len(runes) > nonRewardWindow {
		before = string(runes[len(runes)-nonRewardWindow:])
	}
	for _, word := range nonReward {
		if strings.Contains(before, word) {
			return true
		}
	}
	return false
}

func parseFigure(s string) (int, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return 0, false
		}
		return int(f), true
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
