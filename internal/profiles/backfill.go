package profiles

import (
	"context"
	"fmt"

	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
)

// backfill refreshes p from the catalog, falls back to the secondary genre
// source when the catalog still has no genres, then persists the result.
func (r *Resolver) backfill(ctx context.Context, p music.ArtistProfile) error {
	updated := p

	if r.catalog != nil {
		fresh, err := r.catalog.Artists(ctx, []string{p.ID})
		if err != nil {
			logging.Warn().Err(err).Str("artist_id", p.ID).Msg("profiles: backfill catalog refresh failed")
		}
		for _, f := range fresh {
			if f.ID == p.ID {
				updated = mergeProfile(updated, f)
			}
		}
	}

	if len(updated.Genres) == 0 && r.genres != nil && updated.Name != "" {
		tags, err := r.genres.ArtistGenres(ctx, updated.Name, r.cfg.BackfillTagLimit)
		if err != nil {
			logging.Warn().Err(err).Str("artist_id", p.ID).Msg("profiles: backfill genre lookup failed")
		} else if len(tags) > 0 {
			updated.Genres = tags
		}
	}

	if sameProfile(p, updated) {
		logging.Debug().Str("artist_id", p.ID).Msg("profiles: backfill found nothing new")
		return nil
	}

	r.profiles.Set(updated.ID, updated)
	if r.store != nil {
		if err := r.store.SaveArtists(ctx, []music.ArtistProfile{updated}); err != nil {
			return fmt.Errorf("saving backfilled artist %s: %w", p.ID, err)
		}
	}
	logging.Debug().Str("artist_id", p.ID).Int("genres", len(updated.Genres)).Msg("profiles: backfilled artist")
	return nil
}

// mergeProfile overlays the non-empty fields of fresh onto base.
func mergeProfile(base, fresh music.ArtistProfile) music.ArtistProfile {
	out := base
	if fresh.Name != "" {
		out.Name = fresh.Name
	}
	if len(fresh.Genres) > 0 {
		out.Genres = fresh.Genres
	}
	if fresh.Popularity != nil {
		out.Popularity = fresh.Popularity
	}
	if fresh.Followers != nil {
		out.Followers = fresh.Followers
	}
	return out
}

func sameProfile(a, b music.ArtistProfile) bool {
	if a.Name != b.Name || len(a.Genres) != len(b.Genres) {
		return false
	}
	for i := range a.Genres {
		if a.Genres[i] != b.Genres[i] {
			return false
		}
	}
	return equalPtr(a.Popularity, b.Popularity) && equalPtr(a.Followers, b.Followers)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
