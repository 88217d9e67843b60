package message

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	breakOnOpen  = map[string]bool{"br": true, "p": true, "div": true, "li": true, "tr": true}
	breakOnClose = map[string]bool{"p": true, "div": true, "li": true, "tr": true, "table": true}
	skipContent  = map[string]bool{"script": true, "style": true, "head": true}

	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText linearizes an HTML fragment. Block tags become newlines, all other
// markup is dropped and entities are decoded.
func HTMLToText(src string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(src))
	skipping := 0

loop:
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			break loop
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skipContent[tag] {
				if tt == html.StartTagToken {
					skipping++
				}
				continue
			}
			if breakOnOpen[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skipContent[tag] {
				if skipping > 0 {
					skipping--
				}
				continue
			}
			if breakOnClose[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipping == 0 {
				b.WriteString(html.UnescapeString(string(tokenizer.Raw())))
			}
		}
	}

	lines := strings.Split(strings.ReplaceAll(b.String(), "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t 　")
	}

	text := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
