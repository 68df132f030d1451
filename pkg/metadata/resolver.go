// Package metadata composes the TMDB and TVDB clients into the single
// small interface the search planner needs: title lookup for text-query
// fallback plans, ASCII-safe localized titles, and TVDB id resolution.
package metadata

import (
	"context"
	"errors"
	"strconv"

	"streamnzb/pkg/logger"
	"streamnzb/pkg/metadata/tmdb"
	"streamnzb/pkg/metadata/tvdb"
)

var errNoClient = errors.New("metadata client not configured")

// Resolver implements planner.MetadataResolver over one playback request's
// content type, so LocalizedTitles knows whether to ask TMDB for a movie's
// or a TV show's alternative titles.
type Resolver struct {
	tmdb        *tmdb.Client
	tvdb        *tvdb.Client
	contentType string // "movie" or "series"
}

// NewResolver builds a Resolver. Either client may be nil, in which case
// the lookups it would have served simply return no result.
func NewResolver(tmdbClient *tmdb.Client, tvdbClient *tvdb.Client, contentType string) *Resolver {
	return &Resolver{tmdb: tmdbClient, tvdb: tvdbClient, contentType: contentType}
}

// GetMovieTitle resolves a movie title for text-based search.
func (r *Resolver) GetMovieTitle(imdbID, tmdbID string) (string, error) {
	if r.tmdb == nil {
		return "", errNoClient
	}
	return r.tmdb.GetMovieTitle(context.Background(), imdbID, tmdbID)
}

// GetTVShowName resolves a TV show name for text-based search.
func (r *Resolver) GetTVShowName(tmdbID, imdbID string) (string, error) {
	if r.tmdb == nil {
		return "", errNoClient
	}
	return r.tmdb.GetTVShowName(context.Background(), tmdbID, imdbID)
}

// LocalizedTitles returns ASCII-safe alternative titles via TMDB, resolving
// a numeric TMDB id from tmdbID or, failing that, from imdbID via TMDB's /find.
func (r *Resolver) LocalizedTitles(imdbID, tmdbID string) []string {
	if r.tmdb == nil {
		return nil
	}
	ctx := context.Background()
	mediaType := "movie"
	if r.contentType == "series" {
		mediaType = "tv"
	}

	id, err := r.resolveNumericTMDBID(ctx, imdbID, tmdbID, mediaType)
	if err != nil || id == 0 {
		return nil
	}
	return r.tmdb.LocalizedTitles(ctx, mediaType, id)
}

func (r *Resolver) resolveNumericTMDBID(ctx context.Context, imdbID, tmdbID, mediaType string) (int, error) {
	if tmdbID != "" {
		if id, err := strconv.Atoi(tmdbID); err == nil {
			return id, nil
		}
	}
	if imdbID == "" {
		return 0, errNoClient
	}
	found, err := r.tmdb.Find(ctx, imdbID, "imdb_id")
	if err != nil {
		return 0, err
	}
	if mediaType == "tv" && len(found.TVResults) > 0 {
		return found.TVResults[0].ID, nil
	}
	if mediaType == "movie" && len(found.MovieResults) > 0 {
		return found.MovieResults[0].ID, nil
	}
	return 0, errNoClient
}

// ResolveTVDBID resolves the TVDB series id for a movie/series request,
// preferring TheTVDB's own remote-id search and falling back to deriving
// it through TMDB's external_ids when the TVDB lookup is unavailable.
func (r *Resolver) ResolveTVDBID(imdbID string) (string, error) {
	ctx := context.Background()
	if r.tvdb != nil {
		if id, err := r.tvdb.ResolveTVDBID(ctx, imdbID); err == nil {
			return id, nil
		} else {
			logger.Debug("TVDB remote-id lookup failed, falling back to TMDB", "err", err)
		}
	}
	if r.tmdb != nil {
		return r.tmdb.ResolveTVDBID(ctx, imdbID)
	}
	return "", errNoClient
}
