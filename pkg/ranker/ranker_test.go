package ranker

import (
	"testing"

	"streamnzb/pkg/config"
	"streamnzb/pkg/release"
)

func mkRelease(title string, size int64, pubDate string) *release.Release {
	return &release.Release{Title: title, Size: size, PubDate: pubDate}
}

func TestRankBlocklistHidesISO(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 4<<30, ""),
		mkRelease("Movie.2024.DISC.ISO-GROUP", 8<<30, ""),
	}
	cfg := config.RankerConfig{HideBlockedResults: true}
	out := Rank(releases, cfg)
	if len(out) != 1 {
		t.Fatalf("expected 1 release after blocklist, got %d", len(out))
	}
	if out[0].Title != releases[0].Title {
		t.Errorf("expected the non-ISO release to survive, got %q", out[0].Title)
	}
}

func TestRankResolutionWhitelist(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.2160p.BluRay.x264-GROUP", 20<<30, ""),
		mkRelease("Movie.2024.720p.WEB-DL.x264-GROUP", 2<<30, ""),
	}
	cfg := config.RankerConfig{AllowedResolutions: []string{"1080p", "720p"}}
	out := Rank(releases, cfg)
	if len(out) != 1 {
		t.Fatalf("expected 1 release after resolution whitelist, got %d", len(out))
	}
	if out[0].Resolution() != "720p" {
		t.Errorf("expected the 720p release to survive, got %q", out[0].Resolution())
	}
}

func TestRankSizeCap(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 30<<30, ""),
		mkRelease("Movie.2024.1080p.WEB-DL.x264-GROUP", 4<<30, ""),
	}
	cfg := config.RankerConfig{MaxResultSizeGB: 10}
	out := Rank(releases, cfg)
	if len(out) != 1 {
		t.Fatalf("expected 1 release within size cap, got %d", len(out))
	}
}

func TestRankSortQualityThenSize(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.720p.WEB-DL.x264-GROUP", 3<<30, ""),
		mkRelease("Movie.2024.1080p.WEB-DL.x264-GROUP", 2<<30, ""),
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 8<<30, ""),
	}
	cfg := config.RankerConfig{SortMode: "quality_then_size"}
	out := Rank(releases, cfg)
	if out[0].Resolution() != "1080p" || out[0].Size != 8<<30 {
		t.Errorf("expected highest quality+size first, got %q %d", out[0].Resolution(), out[0].Size)
	}
	if out[len(out)-1].Resolution() != "720p" {
		t.Errorf("expected lowest quality last, got %q", out[len(out)-1].Resolution())
	}
}

func TestRankPerResolutionCap(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP1", 8<<30, ""),
		mkRelease("Movie.2024.1080p.WEB-DL.x264-GROUP2", 6<<30, ""),
		mkRelease("Movie.2024.1080p.WEBRip.x264-GROUP3", 4<<30, ""),
	}
	cfg := config.RankerConfig{ResolutionLimitPerQuality: 2}
	out := Rank(releases, cfg)
	if len(out) != 2 {
		t.Fatalf("expected per-resolution cap of 2, got %d", len(out))
	}
}

func TestRankDedupePrefersNewest(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 8<<30, "Mon, 01 Jan 2024 00:00:00 +0000"),
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 8<<30, "Tue, 02 Jan 2024 00:00:00 +0000"),
	}
	cfg := config.RankerConfig{DedupEnabled: true}
	out := Rank(releases, cfg)
	if len(out) != 1 {
		t.Fatalf("expected dedupe to collapse to 1 release, got %d", len(out))
	}
	if out[0].PubDate != "Tue, 02 Jan 2024 00:00:00 +0000" {
		t.Errorf("expected the newest publish date to win, got %q", out[0].PubDate)
	}
}

func TestRankDedupeOutsideWindowKeepsBoth(t *testing.T) {
	releases := []*release.Release{
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 8<<30, "Mon, 01 Jan 2024 00:00:00 +0000"),
		mkRelease("Movie.2024.1080p.BluRay.x264-GROUP", 8<<30, "Mon, 01 Apr 2024 00:00:00 +0000"),
	}
	cfg := config.RankerConfig{DedupEnabled: true}
	out := Rank(releases, cfg)
	if len(out) != 2 {
		t.Fatalf("expected both releases to survive outside the dedupe window, got %d", len(out))
	}
}
