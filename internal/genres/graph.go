package genres

// edge is an undirected, weighted link between two clusters.
type edge struct {
	a, b   Cluster
	weight float64
}

// clusterEdges is the hand-curated adjacency between genre families.
var clusterEdges = []edge{
	{Metal, Rock, 0.8},
	{Metal, Punk, 0.6},
	{Punk, Rock, 0.8},
	{Indie, Rock, 0.8},
	{Indie, Pop, 0.6},
	{Indie, Folk, 0.6},
	{Indie, Electronic, 0.4},
	{Pop, Rock, 0.5},
	{Pop, Dance, 0.7},
	{Pop, RnB, 0.6},
	{Pop, Electronic, 0.5},
	{Pop, Latin, 0.6},
	{HipHop, RnB, 0.8},
	{HipHop, Electronic, 0.4},
	{HipHop, Reggae, 0.4},
	{RnB, Soul, 0.8},
	{Soul, Jazz, 0.6},
	{Soul, Blues, 0.6},
	{Jazz, Blues, 0.7},
	{Jazz, Classical, 0.4},
	{Blues, Rock, 0.6},
	{Country, Folk, 0.7},
	{Country, Rock, 0.5},
	{Folk, Rock, 0.5},
	{Electronic, Dance, 0.8},
	{Latin, Reggae, 0.5},
	{Classical, Electronic, 0.3},
}

type clusterPair struct{ a, b Cluster }

var adjacency = buildAdjacency(clusterEdges)

func buildAdjacency(edges []edge) map[clusterPair]float64 {
	m := make(map[clusterPair]float64, len(edges)*2)
	for _, e := range edges {
		m[clusterPair{e.a, e.b}] = e.weight
		m[clusterPair{e.b, e.a}] = e.weight
	}
	return m
}

// ClusterWeight returns the similarity between two clusters: 1 for the same
// cluster, the edge weight for adjacent clusters, 0 otherwise.
func ClusterWeight(a, b Cluster) float64 {
	if a == b {
		return 1
	}
	return adjacency[clusterPair{a, b}]
}

// Neighbors returns the clusters adjacent to c with their edge weights.
func Neighbors(c Cluster) map[Cluster]float64 {
	out := make(map[Cluster]float64)
	for _, e := range clusterEdges {
		switch c {
		case e.a:
			out[e.b] = e.weight
		case e.b:
			out[e.a] = e.weight
		}
	}
	return out
}
