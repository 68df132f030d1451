package mount

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"streamnzb/pkg/logger"
)

// hopByHopHeaders are stripped from the upstream response before it is
// forwarded to the client, per RFC 7230 §6.1.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Proxy forwards ranged GET/HEAD requests to a file already mounted by the
// mount service's WebDAV server, and serves an embedded fallback video on
// catastrophic failure instead of a bare error.
type Proxy struct {
	client *Client
}

// NewProxy builds a Proxy bound to client's WebDAV credentials.
func NewProxy(client *Client) *Proxy {
	return &Proxy{client: client}
}

// ServeFile proxies r to fileURL, rewriting the response headers so the
// player sees a clean, range-seekable video response.
func (p *Proxy) ServeFile(w http.ResponseWriter, r *http.Request, fileURL, filename string) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, fileURL, nil)
	if err != nil {
		p.serveFallback(w, r, err)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}
	if p.client.cfg.WebDAVUser != "" {
		req.SetBasicAuth(p.client.cfg.WebDAVUser, p.client.cfg.WebDAVPass)
	}

	resp, err := p.client.webdav.Do(req)
	if err != nil {
		p.serveFallback(w, r, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		p.serveFallback(w, r, fmt.Errorf("mount service returned status %d", resp.StatusCode))
		return
	}

	rewriteHeaders(w.Header(), resp.Header, filename)
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debug("stream proxy copy interrupted", "filename", filename, "err", err)
	}
}

// rewriteHeaders copies src to dst, stripping hop-by-hop headers, filling in
// Content-Type from filename's extension when the mount service didn't set
// one usefully, and adding the headers a browser video player expects.
func rewriteHeaders(dst, src http.Header, filename string) {
	for k, values := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}

	if ct := dst.Get("Content-Type"); ct == "" || ct == "application/octet-stream" {
		if guessed := mime.TypeByExtension(filepath.Ext(filename)); guessed != "" {
			dst.Set("Content-Type", guessed)
		}
	}

	dst.Set("Accept-Ranges", "bytes")
	dst.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", sanitizeFilename(filename)))
	dst.Set("Access-Control-Allow-Origin", "*")
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

// sanitizeFilename strips characters that would break a quoted
// Content-Disposition header value.
func sanitizeFilename(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r == '"' || r == '\\' || r < 0x20 {
			continue
		}
		sb.WriteRune(r)
	}
	if sb.Len() == 0 {
		return "stream.mp4"
	}
	return sb.String()
}

// serveFallback serves an embedded placeholder video so a mount failure
// degrades to "plays a short unavailable clip" instead of a broken player.
// The actual failure is surfaced via X-NZBDav-Failure for client diagnostics.
func (p *Proxy) serveFallback(w http.ResponseWriter, r *http.Request, cause error) {
	logger.Debug("stream proxy falling back", "err", cause)

	asset := fallbackShort
	if r.Header.Get("Range") != "" {
		asset = fallbackLong
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("X-NZBDav-Failure", cause.Error())
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(asset)
	}
}
