package appcast

import (
	"fmt"
	"strings"
	"testing"
)

const sampleFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:sparkle="http://www.andymatuschak.org/xml-namespaces/sparkle">
  <channel>
    <title>BrowserOS Sidecar</title>
    <item>
      <title>Version 2.1.0</title>
      <pubDate>Thu, 15 Jan 2026 10:00:00 +0000</pubDate>
      <sparkle:version>2.1.0</sparkle:version>
      <enclosure url="https://updates.example.com/server-2.1.0-macos-arm64.zip"
                 sparkle:os="macos" sparkle:arch="arm64"
                 sparkle:edSignature="dGVzdC1zaWduYXR1cmU="
                 length="10485760" />
      <enclosure url="https://updates.example.com/server-2.1.0-linux-x86_64.zip"
                 sparkle:os="linux" sparkle:arch="x86_64"
                 length="0" />
    </item>
    <item>
      <title>Version 2.0.0</title>
      <pubDate>Mon, 01 Dec 2025 08:30:00 +0000</pubDate>
      <sparkle:version>2.0.0</sparkle:version>
      <enclosure url="https://updates.example.com/server-2.0.0-macos-arm64.zip"
                 sparkle:os="macos" sparkle:arch="arm64"
                 length="9000000" />
    </item>
  </channel>
</rss>`

func TestParseAll_ParsesInDocumentOrder(t *testing.T) {
	items, err := ParseAll([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Version.String() != "2.1.0" {
		t.Errorf("items[0].Version = %s, want 2.1.0", items[0].Version)
	}
	if items[1].Version.String() != "2.0.0" {
		t.Errorf("items[1].Version = %s, want 2.0.0", items[1].Version)
	}
}

func TestParseAll_EnclosureFields(t *testing.T) {
	items, err := ParseAll([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	first := items[0]
	if len(first.Enclosures) != 2 {
		t.Fatalf("got %d enclosures, want 2", len(first.Enclosures))
	}

	macEnc := first.EnclosureForCurrentPlatform("macos", "arm64")
	if macEnc == nil {
		t.Fatal("expected a macos/arm64 enclosure")
	}
	if macEnc.Signature != "dGVzdC1zaWduYXR1cmU=" {
		t.Errorf("Signature = %q, want the edSignature value", macEnc.Signature)
	}
	if macEnc.Length != 10485760 {
		t.Errorf("Length = %d, want 10485760", macEnc.Length)
	}

	linuxEnc := first.EnclosureForCurrentPlatform("linux", "x86_64")
	if linuxEnc == nil {
		t.Fatal("expected a linux/x86_64 enclosure")
	}
	if linuxEnc.Signature != "" {
		t.Errorf("Signature = %q, want empty for missing edSignature", linuxEnc.Signature)
	}
	if linuxEnc.Length != 0 {
		t.Errorf("Length = %d, want 0", linuxEnc.Length)
	}

	if first.EnclosureForCurrentPlatform("windows", "x86_64") != nil {
		t.Error("expected no windows/x86_64 enclosure")
	}
}

func TestParseLatest_ReturnsFirstItem(t *testing.T) {
	latest, err := ParseLatest([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if latest == nil {
		t.Fatal("expected a non-nil item")
	}
	if latest.Version.String() != "2.1.0" {
		t.Errorf("latest.Version = %s, want 2.1.0", latest.Version)
	}
}

func TestParseLatest_EmptyChannel(t *testing.T) {
	const feed = `<rss version="2.0"><channel><title>Empty</title></channel></rss>`
	latest, err := ParseLatest([]byte(feed))
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for empty channel, got %+v", latest)
	}
}

func TestParseLatest_MalformedXML(t *testing.T) {
	_, err := ParseLatest([]byte("not xml at all <<<"))
	if err == nil {
		t.Fatal("expected an error for malformed XML")
	}
}

func TestParseAll_DropsUnparseableVersions(t *testing.T) {
	const feed = `<rss version="2.0" xmlns:sparkle="http://www.andymatuschak.org/xml-namespaces/sparkle">
  <channel>
    <item><sparkle:version>not-a-version</sparkle:version></item>
    <item><sparkle:version>1.0.0</sparkle:version></item>
  </channel>
</rss>`
	items, err := ParseAll([]byte(feed))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (unparseable version dropped)", len(items))
	}
	if items[0].Version.String() != "1.0.0" {
		t.Errorf("surviving item version = %s, want 1.0.0", items[0].Version)
	}
}

// TestParseAll_RejectsWhitespacePaddedVersions exercises the strict
// rejection rule: a version padded with surrounding whitespace is treated
// as unparseable rather than trimmed and accepted.
func TestParseAll_RejectsWhitespacePaddedVersions(t *testing.T) {
	tests := []string{"  1.2.3", "1.2.3  ", "\t1.2.3\t", " 1.2.3 "}
	for _, padded := range tests {
		t.Run(padded, func(t *testing.T) {
			feed := fmt.Sprintf(`<rss version="2.0" xmlns:sparkle="http://www.andymatuschak.org/xml-namespaces/sparkle">
  <channel>
    <item><sparkle:version>%s</sparkle:version></item>
  </channel>
</rss>`, padded)
			items, err := ParseAll([]byte(feed))
			if err != nil {
				t.Fatalf("ParseAll: %v", err)
			}
			if len(items) != 0 {
				t.Errorf("got %d items for padded version %q, want 0 (rejected, not trimmed)", len(items), padded)
			}
		})
	}
}

func TestParseAll_NoChannel(t *testing.T) {
	items, err := ParseAll([]byte(`<rss version="2.0"></rss>`))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

// TestRoundTrip_EveryParsedItemSurvivesReParse is a loose analogue of the
// round-trip invariant: parsing the same feed twice yields identical
// results, and the set of surviving versions is stable regardless of how
// many times the same bytes are parsed.
func TestRoundTrip_EveryParsedItemSurvivesReParse(t *testing.T) {
	first, err := ParseAll([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("first ParseAll: %v", err)
	}
	second, err := ParseAll([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("second ParseAll: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("parse is not stable: got %d then %d items", len(first), len(second))
	}
	for i := range first {
		if first[i].Version.String() != second[i].Version.String() {
			t.Errorf("item %d version differs between parses: %s vs %s", i, first[i].Version, second[i].Version)
		}
	}
}

func TestParseLatest_IgnoresUnrelatedNamespacePrefixes(t *testing.T) {
	const feed = `<rss version="2.0" xmlns:sparkle="http://www.andymatuschak.org/xml-namespaces/sparkle" xmlns:other="https://example.com/other">
  <channel>
    <item>
      <other:ignored>noise</other:ignored>
      <sparkle:version>3.0.0</sparkle:version>
    </item>
  </channel>
</rss>`
	latest, err := ParseLatest([]byte(feed))
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if latest == nil || latest.Version.String() != "3.0.0" {
		t.Fatalf("got %v, want version 3.0.0", latest)
	}
}

func TestParseAll_MissingClosingTagIsAnError(t *testing.T) {
	_, err := ParseAll([]byte(strings.TrimSuffix(sampleFeed, "</rss>")))
	if err == nil {
		t.Fatal("expected an error for truncated XML")
	}
}
