// Package appcast parses a Sparkle-style RSS release feed into a typed list
// of Items, each carrying per-platform download Enclosures.
package appcast

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Go's encoding/xml matches an unqualified tag by local name only, so these
// struct tags need no namespace prefix to pick up sparkle:version,
// sparkle:os, sparkle:arch and sparkle:edSignature alongside the plain RSS
// fields in the same <item>/<enclosure> elements.
type rawFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rawItem `xml:"item"`
	} `xml:"channel"`
}

type rawItem struct {
	Version    string         `xml:"version"`
	PubDate    string         `xml:"pubDate"`
	Enclosures []rawEnclosure `xml:"enclosure"`
}

type rawEnclosure struct {
	URL         string `xml:"url,attr"`
	OS          string `xml:"os,attr"`
	Arch        string `xml:"arch,attr"`
	EdSignature string `xml:"edSignature,attr"`
	Length      int64  `xml:"length,attr"`
}

// pubDateLayout is the RFC822-with-zone layout RSS 2.0 uses for <pubDate>.
const pubDateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// ParseAll parses every item in the feed, preserving document order, and
// drops items whose <sparkle:version> does not parse as SemVer. Whitespace
// around the version is deliberately not trimmed: a padded version like
// "  1.2.3  " fails to parse and the item is dropped.
func ParseAll(xmlData []byte) ([]Item, error) {
	var feed rawFeed
	if err := xml.Unmarshal(xmlData, &feed); err != nil {
		return nil, fmt.Errorf("parse appcast XML: %w", err)
	}

	items := make([]Item, 0, len(feed.Channel.Items))
	for _, raw := range feed.Channel.Items {
		version, err := semver.NewVersion(raw.Version)
		if err != nil {
			continue
		}

		var pubDate time.Time
		if raw.PubDate != "" {
			if t, err := time.Parse(pubDateLayout, raw.PubDate); err == nil {
				pubDate = t
			}
		}

		enclosures := make([]Enclosure, 0, len(raw.Enclosures))
		for _, e := range raw.Enclosures {
			enclosures = append(enclosures, Enclosure{
				URL:       e.URL,
				OS:        e.OS,
				Arch:      e.Arch,
				Signature: e.EdSignature,
				Length:    e.Length,
			})
		}

		items = append(items, Item{
			Version:    version,
			PubDate:    pubDate,
			Enclosures: enclosures,
		})
	}
	return items, nil
}

// ParseLatest returns the first item in document order whose version parses
// as SemVer, or nil if the XML is malformed, the channel is empty, or no
// item has a valid version.
func ParseLatest(xmlData []byte) (*Item, error) {
	items, err := ParseAll(xmlData)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
