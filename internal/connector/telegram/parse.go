package telegram

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// post is one scraped channel message.
type post struct {
	Channel   string
	MessageID int64
	DateISO   string
	Text      string
	MediaURLs []string
}

var photoStyleRe = regexp.MustCompile(`url\(['"]?(https?://[^'")]+)`)

// parseChannelPage extracts posts from a t.me/s/<channel> HTML page.
func parseChannelPage(channel string, page []byte) ([]post, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return nil, err
	}

	var posts []post
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" {
			return
		}
		if !hasClass(n, "tgme_widget_message") {
			return
		}
		dataPost := attr(n, "data-post")
		if dataPost == "" {
			return
		}
		if p, ok := extractPost(channel, dataPost, n); ok {
			posts = append(posts, p)
		}
	})
	return posts, nil
}

func extractPost(channel, dataPost string, div *html.Node) (post, bool) {
	// data-post is "<channel>/<message id>".
	_, idStr, found := strings.Cut(dataPost, "/")
	if !found {
		return post{}, false
	}
	messageID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return post{}, false
	}

	p := post{Channel: channel, MessageID: messageID}
	media := make(map[string]bool)

	walk(div, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "time":
			// The last <time datetime> in the div is the message time.
			if dt := attr(n, "datetime"); dt != "" {
				p.DateISO = dt
			}
		case "div":
			if hasClass(n, "tgme_widget_message_text") && p.Text == "" {
				p.Text = nodeText(n)
			}
		case "a":
			if hasClass(n, "tgme_widget_message_photo_wrap") {
				if m := photoStyleRe.FindStringSubmatch(attr(n, "style")); m != nil {
					media[m[1]] = true
				}
			}
			if href := attr(n, "href"); strings.HasPrefix(href, "http") {
				media[href] = true
			}
		case "video":
			if src := attr(n, "src"); strings.HasPrefix(src, "http") {
				media[src] = true
			}
		}
	})

	// Telegram-internal links are navigation, not media.
	for u := range media {
		if strings.HasPrefix(u, "https://t.me/") {
			continue
		}
		p.MediaURLs = append(p.MediaURLs, u)
	}
	sort.Strings(p.MediaURLs)
	return p, true
}

// walk visits every node under n in document order.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// nodeText joins the text nodes under n with single spaces.
func nodeText(n *html.Node) string {
	var parts []string
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
	})
	return strings.Join(parts, " ")
}
