package stremio

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"streamnzb/pkg/auth"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/release"
	"streamnzb/pkg/triage"
)

const mountPrewarmTimeout = 80 * time.Second

// assembleStreams turns ranked releases and their triage decisions into the
// final Stremio stream list: unplayable candidates (blocked, fetch errors)
// are dropped, the rest get a playback URL and a triage tag, and instantly
// served (cache-hit) verified candidates sort first.
func (s *Server) assembleStreams(ranked []*release.Release, decisions map[string]*triage.Decision, instant map[string]bool, contentType, id string) []Stream {
	var streams []Stream
	var isInstant []bool

	for _, rel := range ranked {
		key := candidateKey(rel)
		decision, hasDecision := decisions[key]

		var status triage.Status
		if hasDecision {
			status = decision.Status
		}
		if status == triage.StatusBlocked || status == triage.StatusFetchError || status == triage.StatusError {
			continue
		}

		tag := triageTag(status)
		if instant[key] {
			tag = "⚡ Instant " + tag
		}

		playbackURL := s.buildPlaybackURL(rel, contentType, id)
		streams = append(streams, buildStream(playbackURL, rel, rel.Title, tag))
		isInstant = append(isInstant, instant[key])
	}

	var sorted []Stream
	for _, wantInstant := range []bool{true, false} {
		for i, st := range streams {
			if isInstant[i] == wantInstant {
				sorted = append(sorted, st)
			}
		}
	}

	return sorted
}

// triageTag renders a triage status as the short tag shown in a stream's
// name. Statuses that never reach assembleStreams (blocked, fetch-error,
// error) have no case here since they're filtered out earlier.
func triageTag(status triage.Status) string {
	switch status {
	case triage.StatusVerified:
		return "✅ Verified"
	case triage.StatusUnverified, triage.StatusUnverified7z:
		return "⚠️ Unverified"
	case triage.StatusPending:
		return "⏱️ Pending"
	default:
		return ""
	}
}

// buildPlaybackURL builds the /nzb/stream URL Stremio will call back through
// to start playback, carrying everything handlePlay needs to submit (or
// reuse) a mount-service job without a second indexer round trip.
func (s *Server) buildPlaybackURL(rel *release.Release, contentType, id string) string {
	q := url.Values{}
	q.Set("type", contentType)
	q.Set("id", id)
	q.Set("title", rel.Title)
	q.Set("size", strconv.FormatInt(rel.Size, 10))
	if rel.SourceType == release.SourceEasynews && rel.PayloadToken != "" {
		q.Set("easynewsPayload", rel.PayloadToken)
	} else {
		q.Set("downloadUrl", rel.Link)
	}
	return auth.AddonURL(s.cfg.AddonBaseURL, s.cfg.AddonSharedSecret, "/nzb/stream?"+q.Encode())
}

// prewarmMount best-effort-submits a freshly verified candidate to the mount
// service in the background, so the first real playback request for it finds
// a warm (or already-ready) Mount Handle instead of starting cold. The cache
// key must match the one handlePlay derives from the stream's playback URL
// (downloadUrl + title), so this only warms the common Link-based path; an
// Easynews candidate's playback downloadUrl is reconstructed from its
// payload token rather than rel.Link, so it isn't prewarmed.
func (s *Server) prewarmMount(rel *release.Release, nzbBody []byte, contentType string) {
	if s.mountClient == nil || rel.Link == "" {
		return
	}
	category := s.categoryFor(contentType)
	key := rel.Link + "|" + rel.Title

	s.tiers.MountHandle.GetOrStart(key, func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), mountPrewarmTimeout)
		defer cancel()
		jobID, err := s.mountClient.AddFile(ctx, rel.Title+".nzb", nzbBody, category)
		if err != nil {
			return "", err
		}
		job, err := s.mountClient.WaitForCompletion(ctx, jobID)
		if err != nil {
			return "", err
		}
		file, err := s.mountClient.FindLargestVideo(ctx, "/"+job.Name, "")
		if err != nil {
			return "", err
		}
		return s.cfg.Mount.WebDAVURL + file.Path, nil
	})
	logger.Debug("mount prewarm started", "title", rel.Title)
}

func (s *Server) categoryFor(contentType string) string {
	if contentType == "series" {
		return s.cfg.Mount.CategorySeries
	}
	return s.cfg.Mount.CategoryMovies
}
