package stremio

import (
	"fmt"
	"strings"

	"streamnzb/pkg/parser"
	"streamnzb/pkg/release"
)

// buildStream assembles the Stremio Stream object for rel: a provider/quality
// name badge on the left, a multi-line technical description on the right,
// and a tag (the triage verdict, optionally prefixed with an instant-cache
// marker) folded into both.
func buildStream(url string, rel *release.Release, filename, tag string) Stream {
	meta := rel.EnsureParsed()
	sizeGB := float64(rel.Size) / (1 << 30)

	name := buildStreamName(meta, tag)
	description := buildDetailedDescription(meta, sizeGB, filename)

	return Stream{
		URL:         url,
		Name:        name,
		Description: description,
		BehaviorHints: &BehaviorHints{
			BingeGroup: fmt.Sprintf("streamnzb|%s", meta.Group),
			VideoSize:  rel.Size,
			Filename:   filename,
		},
	}
}

// buildStreamName builds the left-side badge: resolution, quality, and the
// triage tag so a user can tell verified from pending results at a glance.
func buildStreamName(meta *parser.ParsedRelease, tag string) string {
	parts := []string{"StreamNZB"}
	if meta.Resolution != "" && meta.Resolution != "unknown" {
		parts = append(parts, meta.Resolution)
	}
	if meta.Quality != "" {
		parts = append(parts, simplifyQuality(meta.Quality))
	}
	if tag != "" {
		parts = append(parts, tag)
	}
	return strings.Join(parts, " ")
}

func simplifyQuality(quality string) string {
	quality = strings.ReplaceAll(quality, "Blu-ray", "BluRay")
	quality = strings.ReplaceAll(quality, "WEB-DL", "WEB")
	return quality
}

// buildDetailedDescription builds the right-side technical detail block
// Stremio renders under the stream name.
func buildDetailedDescription(meta *parser.ParsedRelease, sizeGB float64, filename string) string {
	var lines []string

	var line1 []string
	if meta.Quality != "" {
		line1 = append(line1, "📡 "+meta.Quality)
	}
	if meta.Codec != "" {
		line1 = append(line1, "🎞️ "+simplifyCodec(meta.Codec))
	}
	if meta.Container != "" {
		line1 = append(line1, "📦 "+strings.ToUpper(meta.Container))
	}
	if len(line1) > 0 {
		lines = append(lines, strings.Join(line1, " "))
	}

	var line2 []string
	visualTags := append([]string{}, meta.HDR...)
	if meta.ThreeD != "" {
		visualTags = append(visualTags, meta.ThreeD)
	}
	if len(visualTags) > 0 {
		line2 = append(line2, "📺 "+strings.Join(visualTags, "|"))
	}
	if len(meta.Audio) > 0 {
		audio := meta.Audio[0]
		if len(meta.Channels) > 0 {
			audio = fmt.Sprintf("%s %s", audio, meta.Channels[0])
		}
		line2 = append(line2, "🎧 "+audio)
	}
	if len(line2) > 0 {
		lines = append(lines, strings.Join(line2, " • "))
	}

	var flags []string
	if meta.Proper {
		flags = append(flags, "PROPER")
	}
	if meta.Repack {
		flags = append(flags, "REPACK")
	}
	if meta.Extended {
		flags = append(flags, "EXTENDED")
	}
	if meta.Unrated {
		flags = append(flags, "UNRATED")
	}
	if len(flags) > 0 {
		lines = append(lines, strings.Join(flags, " "))
	}

	sizeLine := fmt.Sprintf("💾 %.2f GB", sizeGB)
	if sizeGB <= 0 {
		sizeLine = "💾 size unknown"
	}
	if meta.Group != "" {
		sizeLine += " • 👥 " + meta.Group
	}
	lines = append(lines, sizeLine)

	if len(meta.Languages) > 0 {
		lines = append(lines, "🌐 "+strings.Join(meta.Languages, " | "))
	}

	lines = append(lines, "📄 "+filename)

	return strings.Join(lines, "\n")
}

func simplifyCodec(codec string) string {
	codec = strings.ToUpper(codec)
	codec = strings.ReplaceAll(codec, "H.265", "HEVC")
	codec = strings.ReplaceAll(codec, "H.264", "AVC")
	codec = strings.ReplaceAll(codec, "X265", "HEVC")
	codec = strings.ReplaceAll(codec, "X264", "AVC")
	return codec
}
