package genres

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClusterOf(t *testing.T) {
	tests := []struct {
		genre string
		want  Cluster
		ok    bool
	}{
		{"nu metal", Metal, true},
		{"Death Metal", Metal, true},
		{"pop punk", Punk, true},
		{"indie rock", Indie, true},
		{"hip hop", HipHop, true},
		{"southern hip hop", HipHop, true},
		{"dubstep", Electronic, true},
		{"roots reggae", Reggae, true},
		{"alternative rock", Rock, true},
		{"dance pop", Pop, true},
		{"k-pop", Pop, true},
		{"vaporwave", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ClusterOf(tt.genre)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ClusterOf(%q) = (%q, %v), want (%q, %v)", tt.genre, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact", "rock", "rock", ExactScore},
		{"case and spacing", "Indie  Rock", "indie rock", ExactScore},
		{"substring", "rock", "classic rock", SubstringScore},
		{"same cluster", "nu metal", "death metal", ClusterScore},
		{"adjacent clusters", "death metal", "classic rock", 0.8},
		{"unrelated", "death metal", "bossa nova", 0},
		{"unknown genre", "vaporwave", "rock", 0},
		{"empty", "", "rock", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	genres := []string{
		"nu metal", "death metal", "rock", "classic rock", "pop punk", "emo",
		"hip hop", "trap", "r&b", "neo soul", "jazz", "smooth jazz", "blues",
		"country", "folk", "indie folk", "edm", "house", "techno", "ambient",
		"classical", "reggaeton", "latin pop", "reggae", "k-pop", "vaporwave",
		"", "unknown",
	}
	for _, a := range genres {
		for _, b := range genres {
			if ab, ba := Similarity(a, b), Similarity(b, a); !approx(ab, ba) {
				t.Errorf("Similarity(%q, %q) = %v but reverse = %v", a, b, ab, ba)
			}
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		candidate []string
		want      float64
	}{
		{"both unknown", nil, []string{"unknown"}, BothUnknownScore},
		{"one unknown", []string{"rock"}, nil, OneUnknownScore},
		{"identical", []string{"rock", "grunge"}, []string{"grunge", "rock"}, 1},
		{
			name:      "average of best matches",
			base:      []string{"nu metal"},
			candidate: []string{"death metal", "bossa nova"},
			want:      (ClusterScore + 0) / 2,
		},
		{
			name:      "one strong genre among several",
			base:      []string{"rock", "jazz"},
			candidate: []string{"rock"},
			want:      1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.base, tt.candidate)
			if !approx(got.Score, tt.want) {
				t.Errorf("Compare score = %v, want %v", got.Score, tt.want)
			}
		})
	}
}

func TestCompareMatchesSortedWithReasons(t *testing.T) {
	res := Compare([]string{"nu metal"}, []string{"bossa nova", "death metal", "nu metal"})
	if len(res.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(res.Matches))
	}
	if res.Matches[0].Reason != "exact" || res.Matches[0].Genre != "nu metal" {
		t.Errorf("first match = %+v, want exact nu metal", res.Matches[0])
	}
	if res.Matches[1].Reason != "cluster:Metal" {
		t.Errorf("second match reason = %q, want cluster:Metal", res.Matches[1].Reason)
	}
	if res.Matches[2].Score != 0 || res.Matches[2].Reason != "none" {
		t.Errorf("last match = %+v, want no match", res.Matches[2])
	}
}

func TestClusterWeightSymmetric(t *testing.T) {
	for _, a := range AllClusters {
		for _, b := range AllClusters {
			if ClusterWeight(a, b) != ClusterWeight(b, a) {
				t.Errorf("ClusterWeight(%s, %s) is asymmetric", a, b)
			}
		}
	}
	if ClusterWeight(Metal, Rock) != 0.8 {
		t.Errorf("Metal~Rock = %v, want 0.8", ClusterWeight(Metal, Rock))
	}
}
