package clustering

import (
	"errors"
	"testing"

	"github.com/justestif/go-dual-gravity/internal/genres"
	"github.com/justestif/go-dual-gravity/internal/music"
)

func TestEmbed(t *testing.T) {
	metal := Embed([]string{"nu metal"})
	if got := metal[clusterIndex[genres.Metal]]; got != 1 {
		t.Errorf("metal component = %v, want 1", got)
	}
	if got := metal[clusterIndex[genres.Rock]]; got <= 0 || got >= 1 {
		t.Errorf("rock component = %v, want between 0 and 1 (adjacent cluster)", got)
	}
	if got := metal[clusterIndex[genres.Jazz]]; got != 0 {
		t.Errorf("jazz component = %v, want 0", got)
	}

	same := Embed([]string{"death metal"})
	if metal.Distance(same) != 0 {
		t.Error("genres in the same cluster should embed identically")
	}

	if !isZero(Embed([]string{"unknown", "zzz"})) {
		t.Error("unclustered genres should embed to a zero vector")
	}
	if len(Embed(nil)) != len(genres.AllClusters) {
		t.Errorf("vector length = %d, want %d", len(Embed(nil)), len(genres.AllClusters))
	}
}

func sampleArtists() []music.ArtistProfile {
	return []music.ArtistProfile{
		{ID: "m1", Name: "Slipknot", Genres: []string{"nu metal"}},
		{ID: "m2", Name: "Korn", Genres: []string{"nu metal", "alternative metal"}},
		{ID: "m3", Name: "Gojira", Genres: []string{"death metal"}},
		{ID: "p1", Name: "Dua Lipa", Genres: []string{"dance pop"}},
		{ID: "p2", Name: "BTS", Genres: []string{"k-pop"}},
		{ID: "p3", Name: "Ava Max", Genres: []string{"pop"}},
		{ID: "j1", Name: "Miles Davis", Genres: []string{"jazz"}},
		{ID: "j2", Name: "Coltrane", Genres: []string{"hard bop", "jazz"}},
		{ID: "x1", Name: "Mystery", Genres: []string{}},
	}
}

func isMetal(a music.ArtistProfile) bool {
	for _, g := range a.Genres {
		if c, ok := genres.ClusterOf(g); ok && c == genres.Metal {
			return true
		}
	}
	return false
}

func TestNeighbors_SingleClusterSortsByDistance(t *testing.T) {
	got, err := Neighbors([]string{"metalcore"}, sampleArtists(), Config{NumClusters: 1})
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("Neighbors() returned %d artists, want 8 (unclustered artist skipped)", len(got))
	}
	for i := 0; i < 3; i++ {
		if !isMetal(got[i]) {
			t.Errorf("got[%d] = %s, want a metal artist among the closest three", i, got[i].Name)
		}
	}
	for _, a := range got {
		if a.ID == "x1" {
			t.Error("artist without clustered genres should be skipped")
		}
	}
}

func TestNeighbors_KMeansKeepsSeedClusterFirst(t *testing.T) {
	got, err := Neighbors([]string{"nu metal"}, sampleArtists(), Config{NumClusters: 3})
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Neighbors() returned no artists")
	}
	if !isMetal(got[0]) {
		t.Errorf("closest neighbor = %s, want a metal artist", got[0].Name)
	}
}

func TestNeighbors_UnknownSeed(t *testing.T) {
	_, err := Neighbors([]string{"unknown"}, sampleArtists(), DefaultConfig())
	if !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("Neighbors() error = %v, want ErrNoEmbedding", err)
	}
}

func TestNeighbors_NoArtists(t *testing.T) {
	got, err := Neighbors([]string{"rock"}, nil, DefaultConfig())
	if err != nil || got != nil {
		t.Errorf("Neighbors() = %v, %v; want nil, nil", got, err)
	}
}
