package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

const trackColumns = `id, name, uri, artist_id, artist_name, album, release_date, popularity, duration_ms, playable`

func scanTracks(rows pgx.Rows) ([]Track, error) {
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.URI,
			&t.ArtistID,
			&t.ArtistName,
			&t.Album,
			&t.ReleaseDate,
			&t.Popularity,
			&t.DurationMs,
			&t.Playable,
		); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// UpsertBatch inserts or updates multiple tracks efficiently.
func (r *TrackRepository) UpsertBatch(ctx context.Context, tracks []Track) error {
	if len(tracks) == 0 {
		return nil
	}

	query := `
		INSERT INTO tracks (` + trackColumns + `)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[],
			$6::text[], $7::text[], $8::int[], $9::int[], $10::bool[])
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			uri = EXCLUDED.uri,
			artist_id = EXCLUDED.artist_id,
			artist_name = EXCLUDED.artist_name,
			album = EXCLUDED.album,
			release_date = EXCLUDED.release_date,
			popularity = EXCLUDED.popularity,
			duration_ms = EXCLUDED.duration_ms,
			playable = EXCLUDED.playable
	`

	n := len(tracks)
	ids := make([]string, n)
	names := make([]string, n)
	uris := make([]string, n)
	artistIDs := make([]string, n)
	artistNames := make([]string, n)
	albums := make([]string, n)
	releaseDates := make([]string, n)
	popularity := make([]int, n)
	durations := make([]int, n)
	playable := make([]bool, n)
	for i, t := range tracks {
		ids[i] = t.ID
		names[i] = t.Name
		uris[i] = t.URI
		artistIDs[i] = t.ArtistID
		artistNames[i] = t.ArtistName
		albums[i] = t.Album
		releaseDates[i] = t.ReleaseDate
		popularity[i] = t.Popularity
		durations[i] = t.DurationMs
		playable[i] = t.Playable
	}

	_, err := r.pool.Exec(ctx, query,
		ids, names, uris, artistIDs, artistNames, albums, releaseDates, popularity, durations, playable)
	if err != nil {
		return fmt.Errorf("batch upserting tracks: %w", err)
	}
	return nil
}

// GetMany retrieves tracks by id. Unknown ids are omitted.
func (r *TrackRepository) GetMany(ctx context.Context, ids []string) ([]Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	return scanTracks(rows)
}

// ByArtists returns up to perArtist of the most popular playable tracks for
// each of the given artists.
func (r *TrackRepository) ByArtists(ctx context.Context, artistIDs []string, perArtist int) ([]Track, error) {
	if len(artistIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + trackColumns + ` FROM (
			SELECT *, row_number() OVER (PARTITION BY artist_id ORDER BY popularity DESC, id) AS rn
			FROM tracks
			WHERE artist_id = ANY($1) AND playable
		) ranked
		WHERE rn <= $2
	`
	rows, err := r.pool.Query(ctx, query, artistIDs, perArtist)
	if err != nil {
		return nil, fmt.Errorf("querying tracks by artists: %w", err)
	}
	return scanTracks(rows)
}

// RandomSample returns random playable tracks matching q.
func (r *TrackRepository) RandomSample(ctx context.Context, q SampleQuery) ([]Track, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	// NULL arrays would make the NOT ANY filters drop every row.
	excludeArtists := nonNil(q.ExcludeArtistIDs)
	excludeTracks := nonNil(q.ExcludeTrackIDs)

	var query string
	if q.OnePerArtist {
		query = `
			SELECT ` + trackColumns + ` FROM (
				SELECT DISTINCT ON (artist_id) ` + trackColumns + `
				FROM tracks
				WHERE playable AND NOT (artist_id = ANY($1)) AND NOT (id = ANY($2))
				ORDER BY artist_id, random()
			) per_artist
			ORDER BY random()
			LIMIT $3
		`
	} else {
		query = `
			SELECT ` + trackColumns + `
			FROM tracks
			WHERE playable AND NOT (artist_id = ANY($1)) AND NOT (id = ANY($2))
			ORDER BY random()
			LIMIT $3
		`
	}

	rows, err := r.pool.Query(ctx, query, excludeArtists, excludeTracks, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("sampling tracks: %w", err)
	}
	return scanTracks(rows)
}

// Count returns the number of stored tracks.
func (r *TrackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tracks: %w", err)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
