package parser

import (
	"reflect"
	"testing"
)

func TestResolveResolution(t *testing.T) {
	tests := []struct {
		name       string
		pttRes     string
		title      string
		wantRes    string
	}{
		{"go-ptt field wins", "1080p", "Movie.2024.2160p.x264", "1080p"},
		{"numeric fallback", "", "Movie.2024.2160p.BluRay.x264-GROUP", "2160p"},
		{"4k alias", "", "Movie.2024.4K.HDR.BluRay-GROUP", "2160p"},
		{"8k alias", "", "Movie.2024.8K.Remux-GROUP", "4320p"},
		{"uhd alias", "", "Movie.2024.UHD.BluRay-GROUP", "2160p"},
		{"fullhd alias", "", "Movie.2024.FullHD.WEB-DL-GROUP", "1080p"},
		{"sd alias", "", "Movie.2024.SD.XviD-GROUP", "480p"},
		{"unknown", "", "Movie.2024.XviD-GROUP", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveResolution(tt.pttRes, tt.title)
			if got != tt.wantRes {
				t.Errorf("resolveResolution(%q, %q) = %q, want %q", tt.pttRes, tt.title, got, tt.wantRes)
			}
		})
	}
}

func TestResolutionRankMonotonic(t *testing.T) {
	prev := -1
	for _, res := range resolutionLadder {
		rank := resolutionRank(res)
		if rank <= prev {
			t.Errorf("resolutionRank(%q) = %d, want > %d (ladder must be strictly increasing)", res, rank, prev)
		}
		prev = rank
	}
}

func TestResolutionGroup(t *testing.T) {
	tests := []struct {
		res  string
		want string
	}{
		{"4320p", "4k"},
		{"2160p", "4k"},
		{"1440p", "1080p"},
		{"1080p", "1080p"},
		{"720p", "720p"},
		{"480p", "sd"},
		{"unknown", "sd"},
	}
	for _, tt := range tests {
		t.Run(tt.res, func(t *testing.T) {
			p := &ParsedRelease{Resolution: tt.res}
			if got := p.ResolutionGroup(); got != tt.want {
				t.Errorf("ResolutionGroup() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectLanguages(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		want   []string
	}{
		{"french synonym", "Movie.2024.FRENCH.1080p-GROUP", []string{"fr"}},
		{"tamil synonym", "Movie.2024.Tamil.720p-GROUP", []string{"ta"}},
		{"multi tag", "Movie.2024.MULTI.1080p-GROUP", []string{"multi"}},
		{"no match", "Movie.2024.1080p.BluRay-GROUP", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectLanguages(nil, tt.title)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("detectLanguages(nil, %q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestDetectLanguagesDedupesPTTField(t *testing.T) {
	got := detectLanguages([]string{"fr"}, "Movie.2024.FRENCH.1080p-GROUP")
	if len(got) != 1 || got[0] != "fr" {
		t.Errorf("detectLanguages with matching ptt field = %v, want [fr]", got)
	}
}

func TestContainsWholeWord(t *testing.T) {
	tests := []struct {
		haystack string
		word     string
		want     bool
	}{
		{"movie.2024.sd.xvid", "sd", true},
		{"movie.2024.usd.xvid", "sd", false},
		{"sd", "sd", true},
		{"movie.2024.hdsd.xvid", "sd", false},
	}
	for _, tt := range tests {
		t.Run(tt.haystack+"/"+tt.word, func(t *testing.T) {
			if got := containsWholeWord(tt.haystack, tt.word); got != tt.want {
				t.Errorf("containsWholeWord(%q, %q) = %v, want %v", tt.haystack, tt.word, got, tt.want)
			}
		})
	}
}
