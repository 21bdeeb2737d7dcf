package profiles

// Stats counts how a lookup was served.
type Stats struct {
	Requested  int `json:"requested"`
	MemoryHits int `json:"memoryHits"`
	StoreHits  int `json:"storeHits"`
	APIFetched int `json:"apiFetched"`
	APICalls   int `json:"apiCalls"`
	Missing    int `json:"missing"`
}

// Merge adds two stats. It is associative and commutative, so per-chunk
// stats can be combined in any order.
func (s Stats) Merge(o Stats) Stats {
	return Stats{
		Requested:  s.Requested + o.Requested,
		MemoryHits: s.MemoryHits + o.MemoryHits,
		StoreHits:  s.StoreHits + o.StoreHits,
		APIFetched: s.APIFetched + o.APIFetched,
		APICalls:   s.APICalls + o.APICalls,
		Missing:    s.Missing + o.Missing,
	}
}

// HitRatio is the share of requested ids served without the catalog.
func (s Stats) HitRatio() float64 {
	if s.Requested == 0 {
		return 0
	}
	return float64(s.MemoryHits+s.StoreHits) / float64(s.Requested)
}

// Tiers lists the tiers that served at least one profile.
func (s Stats) Tiers() []string {
	var tiers []string
	if s.MemoryHits > 0 {
		tiers = append(tiers, "memory")
	}
	if s.StoreHits > 0 {
		tiers = append(tiers, "store")
	}
	if s.APIFetched > 0 {
		tiers = append(tiers, "api")
	}
	return tiers
}

// StatsSink receives the stats of every lookup.
type StatsSink interface {
	RecordLookup(s Stats)
}

type nopSink struct{}

func (nopSink) RecordLookup(Stats) {}
