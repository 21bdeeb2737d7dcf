package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GraphRepository stores per-artist id lists fetched from the catalog: top
// tracks and related artists.
type GraphRepository struct {
	pool *pgxpool.Pool
}

// TopTrackIDs returns cached top-track id lists keyed by artist id.
// Artists without a cached list are absent from the map.
func (r *GraphRepository) TopTrackIDs(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	return r.lists(ctx, `SELECT artist_id, track_ids FROM artist_top_tracks WHERE artist_id = ANY($1)`, artistIDs)
}

// SaveTopTrackIDs replaces an artist's cached top-track list.
func (r *GraphRepository) SaveTopTrackIDs(ctx context.Context, artistID string, trackIDs []string) error {
	query := `
		INSERT INTO artist_top_tracks (artist_id, track_ids, fetched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (artist_id) DO UPDATE SET
			track_ids = EXCLUDED.track_ids,
			fetched_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, artistID, nonNil(trackIDs)); err != nil {
		return fmt.Errorf("saving top tracks for %s: %w", artistID, err)
	}
	return nil
}

// RelatedIDs returns cached related-artist id lists keyed by artist id.
func (r *GraphRepository) RelatedIDs(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	return r.lists(ctx, `SELECT artist_id, related_ids FROM related_artists WHERE artist_id = ANY($1)`, artistIDs)
}

// SaveRelatedIDs replaces an artist's cached related-artist list.
func (r *GraphRepository) SaveRelatedIDs(ctx context.Context, artistID string, relatedIDs []string) error {
	query := `
		INSERT INTO related_artists (artist_id, related_ids, fetched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (artist_id) DO UPDATE SET
			related_ids = EXCLUDED.related_ids,
			fetched_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, artistID, nonNil(relatedIDs)); err != nil {
		return fmt.Errorf("saving related artists for %s: %w", artistID, err)
	}
	return nil
}

func (r *GraphRepository) lists(ctx context.Context, query string, artistIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(artistIDs))
	if len(artistIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, query, artistIDs)
	if err != nil {
		return nil, fmt.Errorf("querying id lists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var ids []string
		if err := rows.Scan(&id, &ids); err != nil {
			return nil, fmt.Errorf("scanning id list: %w", err)
		}
		out[id] = ids
	}
	return out, rows.Err()
}
