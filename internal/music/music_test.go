package music

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Beatles", "the beatles"},
		{"  The   Beatles!! ", "the beatles"},
		{"AC/DC", "acdc"},
		{"Beyoncé", "beyoncé"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReleaseYear(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"1997-05-21", 1997},
		{"2001", 2001},
		{"19", 0},
		{"abcd-01", 0},
	}
	for _, tt := range tests {
		tr := Track{ReleaseDate: tt.date}
		if got := tr.ReleaseYear(); got != tt.want {
			t.Errorf("ReleaseYear(%q) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestSourcePriorityOrder(t *testing.T) {
	order := []Source{
		SourceRelatedTopTracks,
		SourceRelatedArtistInsertion,
		SourceRecommendations,
		SourceEmbeddingFallback,
		SourceTargetBoost,
		SourceTargetInsertion,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Priority() <= order[i-1].Priority() {
			t.Errorf("%s should outrank %s", order[i], order[i-1])
		}
	}
}

func TestSourceValid(t *testing.T) {
	tests := []struct {
		src  Source
		want bool
	}{
		{0, false},
		{SourceRelatedTopTracks, true},
		{SourceTargetInsertion, true},
		{SourceTargetInsertion + 1, false},
	}
	for _, tt := range tests {
		if got := tt.src.Valid(); got != tt.want {
			t.Errorf("Source(%d).Valid() = %v, want %v", int(tt.src), got, tt.want)
		}
		if _, err := tt.src.MarshalText(); (err == nil) != tt.want {
			t.Errorf("Source(%d).MarshalText() error = %v", int(tt.src), err)
		}
	}
}

func TestSourceTextRoundTrip(t *testing.T) {
	for src := range sourceNames {
		text, err := src.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", src, err)
		}
		var got Source
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != src {
			t.Errorf("round trip %s = %s", src, got)
		}
	}
	var s Source
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestTargetMatches(t *testing.T) {
	target := TargetProfile{Name: "Radiohead", SpotifyID: "rh"}
	if !target.Matches("rh", "") {
		t.Error("expected id match")
	}
	if !target.Matches("", "radiohead ") {
		t.Error("expected normalized name match")
	}
	if target.Matches("other", "Muse") {
		t.Error("unexpected match")
	}
}

func TestBandFor(t *testing.T) {
	if BandFor(10) != BandLow || BandFor(40) != BandMid || BandFor(70) != BandHigh {
		t.Error("unexpected band boundaries")
	}
}
