// Package mount talks to the external mount/download service (an
// NZBDav-like queue-and-WebDAV box): it submits a download URL or an
// already-verified NZB body, polls the job until it completes, then walks
// the resulting WebDAV directory for the file to stream.
package mount

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamnzb/pkg/config"
)

const (
	historyPollInterval = 2 * time.Second
	historyDeadline     = 80 * time.Second
	webdavMaxDepth      = 6
)

// JobStatus is the lifecycle state of a submitted download.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one polled history entry.
type Job struct {
	ID     string
	Status JobStatus
	Name   string
	Error  string
}

// historyResponse is the mount service's JSON history shape: a flat list of
// jobs keyed loosely, tolerant of extra fields the service may add.
type historyResponse struct {
	Jobs []struct {
		NZOID  string `json:"nzo_id"`
		Status string `json:"status"`
		Name   string `json:"name"`
		Error  string `json:"error"`
	} `json:"history"`
}

// Client is a thin HTTP client for one mount-service instance.
type Client struct {
	cfg        config.MountConfig
	httpClient *http.Client
	webdav     *http.Client
}

// NewClient builds a Client for cfg's mount and WebDAV endpoints.
func NewClient(cfg config.MountConfig) *Client {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		webdav:     &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

// AddURL submits a download URL to the mount service's queue, returning the
// new job's id.
func (c *Client) AddURL(ctx context.Context, downloadURL, category string) (string, error) {
	apiURL := fmt.Sprintf("%s/api?mode=addurl&name=%s&cat=%s&apikey=%s",
		strings.TrimRight(c.cfg.URL, "/"),
		url.QueryEscape(downloadURL),
		url.QueryEscape(category),
		c.cfg.APIKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	return c.submit(req)
}

// AddFile uploads a verified NZB body directly as a multipart form, skipping
// a redundant download by the mount service when a Verified-NZB Cache hit is
// already in hand.
func (c *Client) AddFile(ctx context.Context, filename string, nzbBody []byte, category string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("mode", "addfile"); err != nil {
		return "", err
	}
	if err := w.WriteField("cat", category); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("name", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(nzbBody); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	apiURL := fmt.Sprintf("%s/api?apikey=%s", strings.TrimRight(c.cfg.URL, "/"), c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.submit(req)
}

func (c *Client) submit(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mount: submit returned status %d", resp.StatusCode)
	}

	var result struct {
		Status bool   `json:"status"`
		NZOIDs []string `json:"nzo_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if !result.Status || len(result.NZOIDs) == 0 {
		return "", fmt.Errorf("mount: submit did not return a job id")
	}
	return result.NZOIDs[0], nil
}

// History fetches the current status of one job.
func (c *Client) History(ctx context.Context, jobID string) (*Job, error) {
	apiURL := fmt.Sprintf("%s/api?mode=history&apikey=%s", strings.TrimRight(c.cfg.URL, "/"), c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mount: history returned status %d", resp.StatusCode)
	}

	var hist historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return nil, err
	}
	for _, j := range hist.Jobs {
		if j.NZOID == jobID {
			return &Job{ID: j.NZOID, Status: JobStatus(j.Status), Name: j.Name, Error: j.Error}, nil
		}
	}
	return nil, fmt.Errorf("mount: job %s not found in history", jobID)
}

// WaitForCompletion polls History at historyPollInterval until the job
// reaches a terminal status or historyDeadline elapses.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string) (*Job, error) {
	deadline := time.Now().Add(historyDeadline)
	ticker := time.NewTicker(historyPollInterval)
	defer ticker.Stop()

	for {
		job, err := c.History(ctx, jobID)
		if err == nil && (job.Status == JobCompleted || job.Status == JobFailed) {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("mount: job %s did not complete within %s", jobID, historyDeadline)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// File is one entry in a PROPFIND multistatus response.
type File struct {
	Path  string
	Size  int64
	IsDir bool
}

type multistatus struct {
	XMLName  xml.Name `xml:"multistatus"`
	Response []struct {
		Href     string `xml:"href"`
		Propstat struct {
			Prop struct {
				ContentLength string `xml:"getcontentlength"`
				ResourceType  struct {
					Collection *struct{} `xml:"collection"`
				} `xml:"resourcetype"`
			} `xml:"prop"`
		} `xml:"propstat"`
	} `xml:"response"`
}

// propfind lists the immediate children of path on the WebDAV server.
func (c *Client) propfind(ctx context.Context, path string) ([]File, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", strings.TrimRight(c.cfg.WebDAVURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", "1")
	if c.cfg.WebDAVUser != "" {
		req.SetBasicAuth(c.cfg.WebDAVUser, c.cfg.WebDAVPass)
	}
	resp, err := c.webdav.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mount: PROPFIND %s returned status %d", path, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var ms multistatus
	if err := xml.Unmarshal(raw, &ms); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(ms.Response))
	for _, r := range ms.Response {
		if strings.TrimRight(r.Href, "/") == strings.TrimRight(path, "/") {
			continue // self-entry
		}
		f := File{Path: r.Href, IsDir: r.Propstat.Prop.ResourceType.Collection != nil}
		if n, err := strconv.ParseInt(r.Propstat.Prop.ContentLength, 10, 64); err == nil {
			f.Size = n
		}
		files = append(files, f)
	}
	return files, nil
}

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".mov": true, ".wmv": true, ".ts": true, ".m2ts": true,
}

func isVideoFile(path string) bool {
	lower := strings.ToLower(path)
	for ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLargestVideo walks root breadth-first (depth capped at webdavMaxDepth)
// and returns the largest video file whose path contains episodeHint, or —
// when episodeHint is empty, or no match is found — the largest video file
// overall.
func (c *Client) FindLargestVideo(ctx context.Context, root, episodeHint string) (*File, error) {
	type queued struct {
		path  string
		depth int
	}

	queue := []queued{{path: root, depth: 0}}
	var best, bestMatch *File

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := c.propfind(ctx, cur.path)
		if err != nil {
			continue
		}
		for i := range entries {
			e := entries[i]
			if e.IsDir {
				if cur.depth < webdavMaxDepth {
					queue = append(queue, queued{path: e.Path, depth: cur.depth + 1})
				}
				continue
			}
			if !isVideoFile(e.Path) {
				continue
			}
			if best == nil || e.Size > best.Size {
				best = &e
			}
			if episodeHint != "" && strings.Contains(strings.ToLower(e.Path), strings.ToLower(episodeHint)) {
				if bestMatch == nil || e.Size > bestMatch.Size {
					bestMatch = &e
				}
			}
		}
	}

	if episodeHint != "" && bestMatch != nil {
		return bestMatch, nil
	}
	if best == nil {
		return nil, fmt.Errorf("mount: no video file found under %s", root)
	}
	return best, nil
}
