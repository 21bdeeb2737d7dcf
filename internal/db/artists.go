package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtistRepository handles artist database operations.
type ArtistRepository struct {
	pool *pgxpool.Pool
}

const artistColumns = `id, name, genres, popularity, followers, updated_at`

func scanArtist(row pgx.Row) (Artist, error) {
	var a Artist
	err := row.Scan(&a.ID, &a.Name, &a.Genres, &a.Popularity, &a.Followers, &a.UpdatedAt)
	return a, err
}

// GetMany retrieves artists by id. Unknown ids are omitted.
func (r *ArtistRepository) GetMany(ctx context.Context, ids []string) ([]Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying artists: %w", err)
	}
	defer rows.Close()

	artists := make([]Artist, 0, len(ids))
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// GetByName finds an artist by case-insensitive name, preferring the most
// popular when several share a name.
func (r *ArtistRepository) GetByName(ctx context.Context, name string) (*Artist, error) {
	query := `
		SELECT ` + artistColumns + `
		FROM artists
		WHERE lower(name) = lower($1)
		ORDER BY popularity DESC NULLS LAST
		LIMIT 1
	`
	a, err := scanArtist(r.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artist by name: %w", err)
	}
	return &a, nil
}

// WithGenres returns up to limit artists that have at least one genre.
func (r *ArtistRepository) WithGenres(ctx context.Context, limit int) ([]Artist, error) {
	query := `
		SELECT ` + artistColumns + `
		FROM artists
		WHERE cardinality(genres) > 0
		ORDER BY updated_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying artists with genres: %w", err)
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// genreSeparator joins genre lists into one text value per row so ragged
// lists can travel through unnest.
const genreSeparator = "\x1f"

// UpsertBatch inserts or updates multiple artists. Existing genres and
// metrics are kept when the new value is empty.
func (r *ArtistRepository) UpsertBatch(ctx context.Context, artists []Artist) error {
	if len(artists) == 0 {
		return nil
	}

	query := `
		INSERT INTO artists (id, name, genres, popularity, followers, updated_at)
		SELECT a.id, a.name, string_to_array(a.genres, chr(31)), a.popularity, a.followers, NOW()
		FROM unnest($1::text[], $2::text[], $3::text[], $4::int[], $5::bigint[])
			AS a(id, name, genres, popularity, followers)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			genres = CASE WHEN cardinality(EXCLUDED.genres) > 0 THEN EXCLUDED.genres ELSE artists.genres END,
			popularity = COALESCE(EXCLUDED.popularity, artists.popularity),
			followers = COALESCE(EXCLUDED.followers, artists.followers),
			updated_at = NOW()
	`

	ids := make([]string, len(artists))
	names := make([]string, len(artists))
	genres := make([]string, len(artists))
	popularity := make([]*int, len(artists))
	followers := make([]*int64, len(artists))
	for i, a := range artists {
		ids[i] = a.ID
		names[i] = a.Name
		genres[i] = strings.Join(a.Genres, genreSeparator)
		popularity[i] = a.Popularity
		followers[i] = a.Followers
	}

	_, err := r.pool.Exec(ctx, query, ids, names, genres, popularity, followers)
	if err != nil {
		return fmt.Errorf("batch upserting artists: %w", err)
	}
	return nil
}
