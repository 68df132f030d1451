// Package tmdb is a client for TheMovieDB's v3 API: id resolution
// (IMDb/TVDB ↔ TMDB), title lookup for text-search fallback plans, and
// ASCII-safe alternative titles for localized-title search plans.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode"

	"streamnzb/pkg/logger"
)

var baseURL = "https://api.themoviedb.org/3"

// Client talks to the TheMovieDB v3 API.
type Client struct {
	apiKey string
	client *http.Client
}

// NewClient builds a Client. An empty apiKey makes every call return an
// error; the caller decides whether that's fatal or just disables
// metadata-driven fallback plans.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// FindResponse is the response from /find/{id}.
type FindResponse struct {
	MovieResults     []Result `json:"movie_results"`
	PersonResults    []Result `json:"person_results"`
	TVResults        []Result `json:"tv_results"`
	TVEpisodeResults []Result `json:"tv_episode_results"`
	TVSeasonResults  []Result `json:"tv_season_results"`
}

// Result is one search-result item.
type Result struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`           // TV
	Title         string `json:"title"`          // Movie
	OriginalName  string `json:"original_name"`  // TV
	OriginalTitle string `json:"original_title"` // Movie
	MediaType     string `json:"media_type"`
	Overview      string `json:"overview"`
}

// ExternalIDsResponse is the response from /{type}/{id}/external_ids.
type ExternalIDsResponse struct {
	ID          int    `json:"id"`
	IMDbID      string `json:"imdb_id"`
	TVDBID      int    `json:"tvdb_id"`
	FreebaseID  string `json:"freebase_id"`
	WikidataID  string `json:"wikidata_id"`
	FacebookID  string `json:"facebook_id"`
	InstagramID string `json:"instagram_id"`
	TwitterID   string `json:"twitter_id"`
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("accept", "application/json")

	return c.client.Do(req)
}

// Find searches for objects by external ID (IMDb, TVDB, ...). source is one
// of TMDB's external_source values, e.g. "imdb_id" or "tvdb_id".
func (c *Client) Find(ctx context.Context, externalID, source string) (*FindResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}

	endpoint := fmt.Sprintf("%s/find/%s", baseURL, externalID)
	params := url.Values{}
	params.Set("external_source", source)

	resp, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("TMDB find request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB returned status: %d", resp.StatusCode)
	}

	var result FindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode TMDB response: %w", err)
	}
	return &result, nil
}

// GetExternalIDs retrieves external IDs for a TMDB object. mediaType is
// "movie" or "tv".
func (c *Client) GetExternalIDs(ctx context.Context, tmdbID int, mediaType string) (*ExternalIDsResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}

	endpoint := fmt.Sprintf("%s/%s/%d/external_ids", baseURL, mediaType, tmdbID)
	resp, err := c.doRequest(ctx, endpoint, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("TMDB external_ids request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB returned status: %d", resp.StatusCode)
	}

	var result ExternalIDsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode TMDB response: %w", err)
	}
	return &result, nil
}

// MovieDetails is the response from GET /movie/{id}.
type MovieDetails struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	ReleaseDate   string `json:"release_date"`
	OriginalTitle string `json:"original_title"`
}

// TVDetails is the response from GET /tv/{id}.
type TVDetails struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GetMovieDetails fetches movie details by TMDB id.
func (c *Client) GetMovieDetails(ctx context.Context, tmdbID int) (*MovieDetails, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}
	endpoint := fmt.Sprintf("%s/movie/%d", baseURL, tmdbID)
	resp, err := c.doRequest(ctx, endpoint, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("TMDB movie details: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB returned status: %d", resp.StatusCode)
	}
	var d MovieDetails
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("TMDB movie decode: %w", err)
	}
	return &d, nil
}

// GetTVDetails fetches TV show details by TMDB id.
func (c *Client) GetTVDetails(ctx context.Context, tmdbID int) (*TVDetails, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}
	endpoint := fmt.Sprintf("%s/tv/%d", baseURL, tmdbID)
	resp, err := c.doRequest(ctx, endpoint, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("TMDB TV details: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB returned status: %d", resp.StatusCode)
	}
	var d TVDetails
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("TMDB TV decode: %w", err)
	}
	return &d, nil
}

// GetMovieTitle resolves a movie title for text-based search, preferring a
// TMDB id when given and falling back to an IMDb id.
func (c *Client) GetMovieTitle(ctx context.Context, imdbID, tmdbID string) (string, error) {
	if tmdbID != "" {
		if id, err := strconv.Atoi(tmdbID); err == nil {
			d, err := c.GetMovieDetails(ctx, id)
			if err != nil {
				return "", err
			}
			return d.Title, nil
		}
	}
	if imdbID != "" {
		find, err := c.Find(ctx, imdbID, "imdb_id")
		if err != nil {
			return "", err
		}
		if len(find.MovieResults) > 0 {
			return find.MovieResults[0].Title, nil
		}
	}
	return "", fmt.Errorf("could not resolve movie title")
}

// GetTVShowName resolves a TV show name for text-based search, preferring a
// TMDB id when given and falling back to an IMDb id.
func (c *Client) GetTVShowName(ctx context.Context, tmdbID, imdbID string) (string, error) {
	if tmdbID != "" {
		if id, err := strconv.Atoi(tmdbID); err == nil {
			d, err := c.GetTVDetails(ctx, id)
			if err != nil {
				return "", err
			}
			return d.Name, nil
		}
	}
	if imdbID != "" {
		find, err := c.Find(ctx, imdbID, "imdb_id")
		if err != nil {
			return "", err
		}
		if len(find.TVResults) > 0 {
			return find.TVResults[0].Name, nil
		}
	}
	return "", fmt.Errorf("could not resolve TV show name")
}

// ResolveTVDBID finds the TVDB series id for an IMDb id (e.g. tt4283088) by
// going IMDb -> TMDB (via /find) -> TVDB (via /tv/{id}/external_ids).
func (c *Client) ResolveTVDBID(ctx context.Context, imdbID string) (string, error) {
	findResp, err := c.Find(ctx, imdbID, "imdb_id")
	if err != nil {
		return "", err
	}
	if len(findResp.TVResults) == 0 {
		return "", fmt.Errorf("no TV show found for IMDb ID: %s", imdbID)
	}

	tmdbID := findResp.TVResults[0].ID
	logger.Debug("resolved TMDB ID from IMDb", "imdb", imdbID, "tmdb", tmdbID)

	extIDs, err := c.GetExternalIDs(ctx, tmdbID, "tv")
	if err != nil {
		return "", err
	}
	if extIDs.TVDBID == 0 {
		return "", fmt.Errorf("no TVDB ID found for TMDB ID: %d", tmdbID)
	}

	logger.Debug("resolved TVDB ID", "tvdb", extIDs.TVDBID)
	return strconv.Itoa(extIDs.TVDBID), nil
}

// alternativeTitlesResponse is the shared shape of
// /movie/{id}/alternative_titles and /tv/{id}/alternative_titles.
type alternativeTitlesResponse struct {
	Titles  []alternativeTitle `json:"titles"`  // movie
	Results []alternativeTitle `json:"results"` // tv
}

type alternativeTitle struct {
	Title string `json:"title"`
	Iso   string `json:"iso_3166_1"`
}

// LocalizedTitles returns ASCII-safe alternative titles for a movie or TV
// show, deduplicated and distinct from the primary title. The search planner
// builds one extra text-search plan from each.
func (c *Client) LocalizedTitles(ctx context.Context, mediaType string, tmdbID int) []string {
	if c.apiKey == "" || tmdbID == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("%s/%s/%d/alternative_titles", baseURL, mediaType, tmdbID)
	resp, err := c.doRequest(ctx, endpoint, url.Values{})
	if err != nil {
		logger.Debug("TMDB alternative_titles request failed", "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var out alternativeTitlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logger.Debug("TMDB alternative_titles decode failed", "err", err)
		return nil
	}

	all := out.Titles
	if len(all) == 0 {
		all = out.Results
	}

	seen := make(map[string]bool)
	var titles []string
	for _, t := range all {
		if t.Title == "" || !isASCII(t.Title) || seen[t.Title] {
			continue
		}
		seen[t.Title] = true
		titles = append(titles, t.Title)
	}
	return titles
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
