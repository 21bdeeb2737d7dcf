// Package genres maps free-text genre strings onto canonical clusters and
// scores how close two genres, or two artists' genre lists, are.
package genres

import "strings"

// Cluster is a canonical genre family.
type Cluster string

const (
	Metal      Cluster = "Metal"
	Rock       Cluster = "Rock"
	Punk       Cluster = "Punk"
	Indie      Cluster = "Indie"
	Pop        Cluster = "Pop"
	HipHop     Cluster = "Hip Hop"
	RnB        Cluster = "R&B"
	Soul       Cluster = "Soul"
	Jazz       Cluster = "Jazz"
	Blues      Cluster = "Blues"
	Country    Cluster = "Country"
	Folk       Cluster = "Folk"
	Electronic Cluster = "Electronic"
	Dance      Cluster = "Dance"
	Classical  Cluster = "Classical"
	Latin      Cluster = "Latin"
	Reggae     Cluster = "Reggae"
)

// AllClusters lists every cluster in a stable order.
var AllClusters = []Cluster{
	Metal, Rock, Punk, Indie, Pop, HipHop, RnB, Soul, Jazz,
	Blues, Country, Folk, Electronic, Dance, Classical, Latin, Reggae,
}

// exactClusters holds genres whose cluster cannot be inferred from keywords.
var exactClusters = map[string]Cluster{
	"hip hop":            HipHop,
	"hip-hop":            HipHop,
	"grime":              HipHop,
	"drill":              HipHop,
	"r&b":                RnB,
	"rnb":                RnB,
	"urban contemporary": RnB,
	"new jack swing":     RnB,
	"motown":             Soul,
	"edm":                Dance,
	"big room":           Dance,
	"k-pop":              Pop,
	"j-pop":              Pop,
	"boy band":           Pop,
	"girl group":         Pop,
	"emo":                Punk,
	"screamo":            Punk,
	"grunge":             Rock,
	"shoegaze":           Indie,
	"lo-fi":              Indie,
	"metalcore":          Metal,
	"deathcore":          Metal,
	"djent":              Metal,
	"bossa nova":         Latin,
	"bachata":            Latin,
	"cumbia":             Latin,
	"dancehall":          Reggae,
	"ska":                Reggae,
	"bluegrass":          Country,
	"americana":          Country,
	"singer-songwriter":  Folk,
	"opera":              Classical,
	"baroque":            Classical,
	"soundtrack":         Classical,
	"ambient":            Electronic,
}

// compoundRule resolves genres carrying two family keywords, e.g. "pop punk".
type compoundRule struct {
	first, second string
	cluster       Cluster
}

var compoundRules = []compoundRule{
	{"pop", "punk", Punk},
	{"rap", "metal", Metal},
	{"nu", "metal", Metal},
	{"rap", "rock", Rock},
	{"folk", "rock", Folk},
	{"folk", "punk", Punk},
	{"country", "rock", Country},
	{"country", "rap", Country},
	{"indie", "pop", Indie},
	{"indie", "rock", Indie},
	{"indie", "folk", Indie},
	{"dance", "pop", Pop},
	{"electro", "pop", Pop},
	{"synth", "pop", Pop},
	{"jazz", "rap", HipHop},
	{"jazz", "fusion", Jazz},
	{"latin", "pop", Latin},
	{"blues", "rock", Blues},
	{"soul", "jazz", Jazz},
}

// keywordClusters is checked in order; the first keyword contained in the
// genre wins, so "metal" must precede "rock" and "pop".
var keywordClusters = []struct {
	keyword string
	cluster Cluster
}{
	{"metal", Metal},
	{"punk", Punk},
	{"hardcore", Punk},
	{"hip hop", HipHop},
	{"rap", HipHop},
	{"trap", HipHop},
	{"r&b", RnB},
	{"soul", Soul},
	{"funk", Soul},
	{"gospel", Soul},
	{"jazz", Jazz},
	{"swing", Jazz},
	{"bebop", Jazz},
	{"blues", Blues},
	{"country", Country},
	{"honky", Country},
	{"folk", Folk},
	{"acoustic", Folk},
	{"classical", Classical},
	{"orchestra", Classical},
	{"symphon", Classical},
	{"reggaeton", Latin},
	{"latin", Latin},
	{"salsa", Latin},
	{"samba", Latin},
	{"dubstep", Electronic},
	{"reggae", Reggae},
	{"dub", Reggae},
	{"house", Dance},
	{"techno", Dance},
	{"trance", Dance},
	{"disco", Dance},
	{"dance", Dance},
	{"drum and bass", Electronic},
	{"electro", Electronic},
	{"synth", Electronic},
	{"idm", Electronic},
	{"indie", Indie},
	{"alternative", Rock},
	{"rock", Rock},
	{"pop", Pop},
}

// ClusterOf maps a genre to its cluster. The second return is false when the
// genre matches no table.
func ClusterOf(genre string) (Cluster, bool) {
	g := normalize(genre)
	if g == "" {
		return "", false
	}
	if c, ok := exactClusters[g]; ok {
		return c, true
	}
	for _, rule := range compoundRules {
		if strings.Contains(g, rule.first) && strings.Contains(g, rule.second) {
			return rule.cluster, true
		}
	}
	for _, kc := range keywordClusters {
		if strings.Contains(g, kc.keyword) {
			return kc.cluster, true
		}
	}
	return "", false
}

func normalize(genre string) string {
	return strings.Join(strings.Fields(strings.ToLower(genre)), " ")
}
