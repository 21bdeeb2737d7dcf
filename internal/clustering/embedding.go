// Package clustering groups stored artists by genre profile using k-means,
// so the seed builder can find artists near a seed when the related-artist
// graph comes up short.
package clustering

import (
	"errors"
	"fmt"
	"sort"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/go-dual-gravity/internal/genres"
	"github.com/justestif/go-dual-gravity/internal/music"
)

// ErrNoEmbedding is returned when the seed genres map to no known cluster.
var ErrNoEmbedding = errors.New("genres map to no known cluster")

// Config holds genre-embedding clustering parameters.
type Config struct {
	NumClusters int `koanf:"num_clusters"` // Number of k-means partitions (default: 8)
	MaxArtists  int `koanf:"max_artists"`  // Stored artists sampled per run (default: 500)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters: 8,
		MaxArtists:  500,
	}
}

// neighborWeight scales how much an adjacent cluster contributes to a vector.
const neighborWeight = 0.5

var clusterIndex = func() map[genres.Cluster]int {
	idx := make(map[genres.Cluster]int, len(genres.AllClusters))
	for i, c := range genres.AllClusters {
		idx[c] = i
	}
	return idx
}()

// Embed maps a genre list onto one dimension per genre cluster. Each genre
// adds 1 to its own cluster and a fraction of the edge weight to adjacent
// clusters; the vector is scaled so its largest component is 1. Genres with
// no cluster are ignored, so an all-unknown list yields a zero vector.
func Embed(genreList []string) clusters.Coordinates {
	vector := make(clusters.Coordinates, len(genres.AllClusters))
	for _, g := range genreList {
		c, ok := genres.ClusterOf(g)
		if !ok {
			continue
		}
		vector[clusterIndex[c]] += 1
		for n, w := range genres.Neighbors(c) {
			vector[clusterIndex[n]] += neighborWeight * w
		}
	}

	var maxVal float64
	for _, v := range vector {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		return vector
	}
	for i := range vector {
		vector[i] /= maxVal
	}
	return vector
}

func isZero(c clusters.Coordinates) bool {
	for _, v := range c {
		if v != 0 {
			return false
		}
	}
	return true
}

// artistObservation wraps an artist to implement clusters.Observation.
type artistObservation struct {
	artist music.ArtistProfile
	coords clusters.Coordinates
}

func (o artistObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o artistObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Neighbors partitions artists by genre embedding and returns the members of
// the partition nearest to the seed genres, closest first. Artists whose
// genres map to no cluster are skipped.
func Neighbors(seedGenres []string, artists []music.ArtistProfile, cfg Config) ([]music.ArtistProfile, error) {
	seed := Embed(seedGenres)
	if isZero(seed) {
		return nil, ErrNoEmbedding
	}
	if cfg.NumClusters <= 0 {
		cfg.NumClusters = DefaultConfig().NumClusters
	}

	var obs clusters.Observations
	for _, a := range artists {
		coords := Embed(a.Genres)
		if isZero(coords) {
			continue
		}
		obs = append(obs, artistObservation{artist: a, coords: coords})
	}
	if len(obs) == 0 {
		return nil, nil
	}

	members := obs
	if k := min(cfg.NumClusters, len(obs)); k > 1 {
		result, err := kmeans.New().Partition(obs, k)
		if err != nil {
			return nil, fmt.Errorf("partitioning %d artists: %w", len(obs), err)
		}
		members = result[result.Nearest(seed)].Observations
	}

	out := make([]artistObservation, 0, len(members))
	for _, o := range members {
		if ao, ok := o.(artistObservation); ok {
			out = append(out, ao)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Distance(seed), out[j].Distance(seed)
		if di != dj {
			return di < dj
		}
		return out[i].artist.ID < out[j].artist.ID
	})

	profiles := make([]music.ArtistProfile, len(out))
	for i, o := range out {
		profiles[i] = o.artist
	}
	return profiles, nil
}
