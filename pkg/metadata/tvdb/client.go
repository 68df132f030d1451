// Package tvdb is a client for TheTVDB v4 API, used to resolve a series's
// TVDB id from an IMDb or TMDB id so the search planner can build a
// TVDB-id plan. Bearer tokens are cached in-process and persisted via
// pkg/persistence so a restart doesn't force a fresh login immediately.
package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"streamnzb/pkg/logger"
	"streamnzb/pkg/persistence"
)

const (
	stateKey       = "tvdb_token"
	successVal     = "success"
	tokenValidDays = 25 // TVDB tokens last ~1 month; refresh before expiry
)

var baseURL = "https://api4.thetvdb.com/v4"

// Client talks to TheTVDB v4 API.
type Client struct {
	apiKey     string
	dataDir    string
	client     *http.Client
	tokenCache string
}

// NewClient builds a Client. dataDir is where the bearer token is cached
// across restarts (via pkg/persistence's state.json).
func NewClient(apiKey, dataDir string) *Client {
	return &Client{
		apiKey:  apiKey,
		dataDir: dataDir,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token string `json:"token"`
	} `json:"data"`
}

type searchRemoteIDResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Episode *struct {
			SeriesID int `json:"seriesId"`
		} `json:"episode"`
		Movie *struct {
			ID int `json:"id"`
		} `json:"movie"`
		Series *struct {
			ID int `json:"id"`
		} `json:"series"`
	} `json:"data"`
}

type tokenState struct {
	Token     string `json:"token"`
	CreatedAt string `json:"created_at"` // RFC3339
}

// ensureToken returns a valid bearer token from cache, from the persisted
// state (if not expired), or by logging in.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("TVDB API key not configured")
	}
	if c.tokenCache != "" {
		return c.tokenCache, nil
	}

	manager, err := persistence.GetManager(c.dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to get state manager: %w", err)
	}
	var stored tokenState
	if found, _ := manager.Get(stateKey, &stored); found && stored.Token != "" {
		if created, err := time.Parse(time.RFC3339, stored.CreatedAt); err == nil {
			age := time.Since(created)
			if age < tokenValidDays*24*time.Hour {
				c.tokenCache = stored.Token
				return c.tokenCache, nil
			}
			logger.Debug("TVDB token expired, refreshing", "age_days", int(age.Hours()/24))
		}
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	state := tokenState{Token: token, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := manager.Set(stateKey, state); err != nil {
		logger.Warn("failed to save TVDB token to state", "err", err)
	}
	c.tokenCache = token
	return token, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	body := map[string]string{"apikey": c.apiKey}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/login", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("TVDB login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("TVDB login returned status: %d", resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode TVDB login response: %w", err)
	}
	if out.Status != successVal || out.Data.Token == "" {
		return "", fmt.Errorf("TVDB login failed: status=%s", out.Status)
	}
	logger.Debug("TVDB login successful")
	return out.Data.Token, nil
}

func (c *Client) invalidateToken() {
	c.tokenCache = ""
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
		resp.Body.Close()
		return nil, fmt.Errorf("TVDB token invalid or expired")
	}
	return resp, nil
}

// ResolveTVDBID looks up the TVDB series id by IMDb id (e.g. tt4283088) or
// TMDB id via GET /search/remoteid/{remoteId}.
func (c *Client) ResolveTVDBID(ctx context.Context, remoteID string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("TVDB API key not configured")
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/search/remoteid/"+remoteID, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("TVDB search/remoteid returned status: %d", resp.StatusCode)
	}

	var out searchRemoteIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode TVDB response: %w", err)
	}
	if out.Status != successVal {
		return "", fmt.Errorf("TVDB search failed: status=%s", out.Status)
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("no TVDB result for remote ID: %s", remoteID)
	}

	for _, item := range out.Data {
		if item.Episode != nil && item.Episode.SeriesID != 0 {
			logger.Debug("resolved TVDB ID from remote ID", "remote", remoteID, "tvdb", item.Episode.SeriesID)
			return strconv.Itoa(item.Episode.SeriesID), nil
		}
		if item.Series != nil && item.Series.ID != 0 {
			logger.Debug("resolved TVDB ID from remote ID (series)", "remote", remoteID, "tvdb", item.Series.ID)
			return strconv.Itoa(item.Series.ID), nil
		}
		if item.Movie != nil && item.Movie.ID != 0 {
			logger.Debug("resolved TVDB ID from remote ID (movie)", "remote", remoteID, "tvdb", item.Movie.ID)
			return strconv.Itoa(item.Movie.ID), nil
		}
	}
	return "", fmt.Errorf("no TVDB ID found for remote ID: %s", remoteID)
}
