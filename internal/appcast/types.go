package appcast

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

// Enclosure is a single platform-specific release artifact entry within an
// appcast item.
type Enclosure struct {
	URL       string
	OS        string // "macos", "linux", "windows"
	Arch      string // "arm64", "x86_64"
	Signature string // sparkle:edSignature, base64; may be empty
	Length    int64
}

// MatchesCurrentPlatform reports whether the enclosure's os/arch equal the
// given platform tuple.
func (e Enclosure) MatchesCurrentPlatform(os, arch string) bool {
	return e.OS == os && e.Arch == arch
}

// Item is a single appcast release entry.
type Item struct {
	Version    *semver.Version
	PubDate    time.Time
	Enclosures []Enclosure
}

// EnclosureForCurrentPlatform returns the first enclosure matching the given
// platform tuple, or nil if none match.
func (i Item) EnclosureForCurrentPlatform(os, arch string) *Enclosure {
	for idx := range i.Enclosures {
		if i.Enclosures[idx].MatchesCurrentPlatform(os, arch) {
			return &i.Enclosures[idx]
		}
	}
	return nil
}
