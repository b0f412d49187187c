package rss

import (
	"encoding/xml"
	"fmt"
	"time"
)

// parsedItem is one feed entry after format differences are flattened away.
type parsedItem struct {
	Title       string
	Link        string
	Description string
	Published   time.Time // zero when the feed carried no usable date
}

// parsedFeed is a feed after parsing, either RSS 2.0 or Atom.
type parsedFeed struct {
	Title string
	Items []parsedItem
}

// rss20 mirrors the RSS 2.0 elements we read.
type rss20 struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// atom10 mirrors the Atom elements we read.
type atom10 struct {
	XMLName xml.Name `xml:"feed"`
	Title   string   `xml:"title"`
	Entries []struct {
		Title   string     `xml:"title"`
		Links   []atomLink `xml:"link"`
		Summary string     `xml:"summary"`
		Content string     `xml:"content"`
		Updated string     `xml:"updated"`
		Publish string     `xml:"published"`
	} `xml:"entry"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// itemDateLayouts are tried in order for RSS pubDate values. Feeds in the
// wild use all of these.
var itemDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseFeed parses raw bytes as RSS 2.0 first, then Atom.
func parseFeed(raw []byte) (*parsedFeed, error) {
	var r rss20
	if err := xml.Unmarshal(raw, &r); err == nil {
		feed := &parsedFeed{Title: r.Channel.Title}
		for _, it := range r.Channel.Items {
			feed.Items = append(feed.Items, parsedItem{
				Title:       it.Title,
				Link:        it.Link,
				Description: it.Description,
				Published:   parseItemDate(it.PubDate),
			})
		}
		return feed, nil
	}

	var a atom10
	if err := xml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("not RSS 2.0 or Atom: %w", err)
	}
	feed := &parsedFeed{Title: a.Title}
	for _, e := range a.Entries {
		link := ""
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if link == "" && len(e.Links) > 0 {
			link = e.Links[0].Href
		}
		summary := e.Summary
		if summary == "" {
			summary = e.Content
		}
		date := e.Publish
		if date == "" {
			date = e.Updated
		}
		feed.Items = append(feed.Items, parsedItem{
			Title:       e.Title,
			Link:        link,
			Description: summary,
			Published:   parseItemDate(date),
		})
	}
	return feed, nil
}

func parseItemDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range itemDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
