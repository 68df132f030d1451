package nzb

import (
	"strings"
	"testing"
)

const sampleNZB = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<head>
<meta type="name">Test.Movie.2024.1080p.BluRay.x264-GROUP</meta>
</head>
<file poster="user@example.com" date="1700000000" subject="&quot;test.movie.2024.1080p.bluray.x264-group.r00&quot; yEnc (1/20)">
<groups><group>alt.binaries.test</group></groups>
<segments>
<segment bytes="500000" number="2">seg2@example</segment>
<segment bytes="500000" number="1">seg1@example</segment>
</segments>
</file>
<file poster="user@example.com" date="1700000000" subject="&quot;test.movie.2024.1080p.bluray.x264-group.rar&quot; yEnc (1/30)">
<groups><group>alt.binaries.test</group></groups>
<segments>
<segment bytes="900000" number="1">seg3@example</segment>
</segments>
</file>
</nzb>`

func TestParseAndSortSegments(t *testing.T) {
	n, err := Parse(strings.NewReader(sampleNZB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(n.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(n.Files))
	}
	segs := n.Files[0].Segments
	if len(segs) != 2 || segs[0].Number != 1 || segs[1].Number != 2 {
		t.Errorf("expected segments sorted by number, got %+v", segs)
	}
}

func TestExtractFilename(t *testing.T) {
	cases := []struct {
		subject string
		want    string
	}{
		{`"test.movie.2024.mkv" yEnc (1/50)`, "test.movie.2024.mkv"},
		{"plain.mkv (1/50)", "plain.mkv"},
		{"  \"quoted.file.mp4\"  ", "quoted.file.mp4"},
	}
	for _, c := range cases {
		if got := ExtractFilename(c.subject); got != c.want {
			t.Errorf("ExtractFilename(%q) = %q, want %q", c.subject, got, c.want)
		}
	}
}

func TestCompressionTypeRAR(t *testing.T) {
	n, err := Parse(strings.NewReader(sampleNZB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ct := n.CompressionType(); ct != "rar" {
		t.Errorf("CompressionType() = %q, want %q", ct, "rar")
	}
}

func TestCompressionTypeDirectWhenNoArchive(t *testing.T) {
	const direct = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<file poster="user@example.com" date="1700000000" subject="&quot;movie.2024.mkv&quot; yEnc (1/10)">
<segments><segment bytes="1000" number="1">seg1@example</segment></segments>
</file>
</nzb>`
	n, err := Parse(strings.NewReader(direct))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ct := n.CompressionType(); ct != "direct" {
		t.Errorf("CompressionType() = %q, want %q", ct, "direct")
	}
}

func TestCalculateIDStableForSameMessageID(t *testing.T) {
	n, err := Parse(strings.NewReader(sampleNZB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	id1 := n.CalculateID()
	id2 := n.CalculateID()
	if id1 == "" || id1 != id2 {
		t.Errorf("expected stable non-empty id, got %q and %q", id1, id2)
	}
}

func TestTotalSize(t *testing.T) {
	n, err := Parse(strings.NewReader(sampleNZB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := n.TotalSize(); got != 1900000 {
		t.Errorf("TotalSize() = %d, want %d", got, 1900000)
	}
}
