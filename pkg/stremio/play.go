package stremio

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamnzb/pkg/auth"
	"streamnzb/pkg/logger"
)

const mountWaitTimeout = 85 * time.Second

// handlePlay serves GET/HEAD /nzb/stream, the playback URL embedded in every
// stream returned by handleStream. It resolves the candidate to a mounted
// file (submitting it to the mount service if nothing is in flight yet) and
// proxies the ranged video response back to the player.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contentType := q.Get("type")
	title := q.Get("title")
	downloadURL := q.Get("downloadUrl")
	easynewsPayload := q.Get("easynewsPayload")
	historyNzoID := q.Get("historyNzoId")
	historyJobName := q.Get("historyJobName")

	if downloadURL == "" && easynewsPayload != "" {
		downloadURL = auth.AddonURL(s.cfg.AddonBaseURL, s.cfg.AddonSharedSecret, "/easynews/nzb?payload="+url.QueryEscape(easynewsPayload))
	}
	if downloadURL == "" {
		logger.Error("play request missing downloadUrl and easynewsPayload")
		s.proxy.ServeFile(w, r, "", filenameFor(title))
		return
	}

	category := s.categoryFor(contentType)
	if hc := q.Get("historyCategory"); hc != "" {
		category = hc
	}

	cacheKey := downloadURL + "|" + title
	handle := s.tiers.MountHandle.GetOrStart(cacheKey, func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), mountPrewarmTimeout)
		defer cancel()
		return s.resolvePlaybackURL(ctx, downloadURL, category, historyNzoID, historyJobName)
	})

	waitCtx, cancel := context.WithTimeout(r.Context(), mountWaitTimeout)
	defer cancel()
	if err := handle.Wait(waitCtx); err != nil {
		logger.Error("mount resolution timed out", "title", title, "err", err)
		s.proxy.ServeFile(w, r, "", filenameFor(title))
		return
	}

	fileURL, err := handle.Result()
	if err != nil {
		logger.Error("mount resolution failed", "title", title, "err", err)
		s.proxy.ServeFile(w, r, "", filenameFor(title))
		return
	}

	s.proxy.ServeFile(w, r, fileURL, filenameFor(title))
}

// resolvePlaybackURL submits downloadURL to the mount service (unless
// historyNzoID already names an in-flight or completed job for it), waits
// for completion, then walks the result for the largest video file.
func (s *Server) resolvePlaybackURL(ctx context.Context, downloadURL, category, historyNzoID, historyJobName string) (string, error) {
	jobID := historyNzoID
	if jobID == "" {
		id, err := s.mountClient.AddURL(ctx, downloadURL, category)
		if err != nil {
			return "", err
		}
		jobID = id
	}

	job, err := s.mountClient.WaitForCompletion(ctx, jobID)
	if err != nil {
		return "", err
	}

	jobName := historyJobName
	if jobName == "" {
		jobName = job.Name
	}

	file, err := s.mountClient.FindLargestVideo(ctx, "/"+jobName, "")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s.cfg.Mount.WebDAVURL, "/") + file.Path, nil
}

// handleEasynewsNZB serves GET /easynews/nzb?payload=, reconstructing an NZB
// on demand from an opaque Easynews search-result token. The mount service
// calls this endpoint as though it were a normal NZB download URL.
func (s *Server) handleEasynewsNZB(w http.ResponseWriter, r *http.Request) {
	if s.easynewsIdx == nil {
		http.Error(w, "easynews is not configured", http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("payload") == "" {
		http.Error(w, "missing payload", http.StatusBadRequest)
		return
	}

	body, err := s.easynewsIdx.DownloadNZB(r.Context(), r.URL.String())
	if err != nil {
		logger.Error("easynews nzb reconstruction failed", "err", err)
		http.Error(w, "failed to build nzb", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/x-nzb")
	w.Write(body)
}

func filenameFor(title string) string {
	if title == "" {
		return "stream.mp4"
	}
	return title
}
