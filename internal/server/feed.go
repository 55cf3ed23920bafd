package server

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/TobiSchelling/saintcast/internal/database"
)

const (
	itunesNS  = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	contentNS = "http://purl.org/rss/1.0/modules/content/"
	atomNS    = "http://www.w3.org/2005/Atom"
	feedLimit = 300
)

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	ITunes  string   `xml:"xmlns:itunes,attr"`
	Content string   `xml:"xmlns:content,attr"`
	Atom    string   `xml:"xmlns:atom,attr"`
	Channel channel  `xml:"channel"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type itunesCategory struct {
	Text string `xml:"text,attr"`
}

type channel struct {
	Title          string         `xml:"title"`
	Link           string         `xml:"link"`
	Description    string         `xml:"description"`
	Language       string         `xml:"language"`
	AtomLink       atomLink       `xml:"atom:link"`
	LastBuildDate  string         `xml:"lastBuildDate,omitempty"`
	ITunesAuthor   string         `xml:"itunes:author"`
	ITunesSummary  string         `xml:"itunes:summary"`
	ITunesType     string         `xml:"itunes:type"`
	ITunesExplicit string         `xml:"itunes:explicit"`
	ITunesCategory itunesCategory `xml:"itunes:category"`
	Items          []item         `xml:"item"`
}

type guid struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type item struct {
	Title             string    `xml:"title"`
	Link              string    `xml:"link"`
	GUID              guid      `xml:"guid"`
	PubDate           string    `xml:"pubDate"`
	Description       string    `xml:"description"`
	ContentEncoded    cdata     `xml:"content:encoded"`
	Enclosure         enclosure `xml:"enclosure"`
	ITunesTitle       string    `xml:"itunes:title"`
	ITunesSubtitle    string    `xml:"itunes:subtitle,omitempty"`
	ITunesSummary     string    `xml:"itunes:summary,omitempty"`
	ITunesDuration    string    `xml:"itunes:duration,omitempty"`
	ITunesEpisode     int       `xml:"itunes:episode"`
	ITunesEpisodeType string    `xml:"itunes:episodeType"`
	ITunesExplicit    string    `xml:"itunes:explicit"`
}

// formatDuration renders seconds as HH:MM:SS.
func formatDuration(seconds *int) string {
	if seconds == nil {
		return ""
	}
	d := *seconds
	return fmt.Sprintf("%02d:%02d:%02d", d/3600, d%3600/60, d%60)
}

// buildFeed renders the RSS document for podcast. sizeOf reports the stored
// file size of an episode's audio.
func buildFeed(base string, podcast *database.Podcast, episodes []database.Episode, sizeOf func(database.Episode) int64) ([]byte, error) {
	description := podcast.Title
	if podcast.Description != nil && *podcast.Description != "" {
		description = *podcast.Description
	}
	link := podcast.Link
	if link == "" {
		link = base + "/podcasts/" + podcast.Slug + "/"
	}

	ch := channel{
		Title:          podcast.Title,
		Link:           link,
		Description:    description,
		Language:       "en-us",
		AtomLink:       atomLink{Href: base + "/podcasts/" + podcast.Slug + "/feed.xml", Rel: "self", Type: "application/rss+xml"},
		ITunesAuthor:   podcast.Title,
		ITunesSummary:  description,
		ITunesType:     "episodic",
		ITunesExplicit: "false",
		ITunesCategory: itunesCategory{Text: "Religion & Spirituality"},
	}
	if len(episodes) > 0 {
		ch.LastBuildDate = episodes[0].PublishedAt.UTC().Format(time.RFC1123Z)
	}

	for _, e := range episodes {
		page := base + "/episodes/" + e.Slug
		ch.Items = append(ch.Items, item{
			Title:          e.Title,
			Link:           page,
			GUID:           guid{IsPermaLink: false, Value: podcast.ID + "/" + e.Slug},
			PubDate:        e.PublishedAt.UTC().Format(time.RFC1123Z),
			Description:    e.ShortDescription,
			ContentEncoded: cdata{Value: longHTML(e.LongDescription)},
			Enclosure: enclosure{
				URL:    base + "/media/podcasts/" + e.FileName,
				Length: sizeOf(e),
				Type:   "audio/mpeg",
			},
			ITunesTitle:       e.Title,
			ITunesSubtitle:    e.Subtitle,
			ITunesSummary:     e.ShortDescription,
			ITunesDuration:    formatDuration(e.Duration),
			ITunesEpisode:     e.EpisodeNumber,
			ITunesEpisodeType: "full",
			ITunesExplicit:    "false",
		})
	}

	doc := rss{Version: "2.0", ITunes: itunesNS, Content: contentNS, Atom: atomNS, Channel: ch}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
