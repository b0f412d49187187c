package connector

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLText extracts the visible text of an HTML fragment, joining text nodes
// with single spaces. Script and style contents are dropped. Malformed
// markup degrades to whatever text the tokenizer can salvage, which is the
// right behaviour for scraped feeds.
func HTMLText(fragment string) string {
	tok := html.NewTokenizer(strings.NewReader(fragment))
	var (
		parts []string
		skip  int
	)
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tok.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}
