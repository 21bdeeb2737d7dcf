package seeds

// FetchStats counts the related-top-tracks stage.
type FetchStats struct {
	Artists       int `json:"artists"`
	StoreHits     int `json:"storeHits"`
	Fetched       int `json:"fetched"`
	FetchFailures int `json:"fetchFailures"`
	CapSkipped    int `json:"capSkipped"`
	Added         int `json:"added"`
}

// Merge adds two stats. Order does not matter.
func (s FetchStats) Merge(o FetchStats) FetchStats {
	return FetchStats{
		Artists:       s.Artists + o.Artists,
		StoreHits:     s.StoreHits + o.StoreHits,
		Fetched:       s.Fetched + o.Fetched,
		FetchFailures: s.FetchFailures + o.FetchFailures,
		CapSkipped:    s.CapSkipped + o.CapSkipped,
		Added:         s.Added + o.Added,
	}
}

// StrategyRun records one fallback strategy execution.
type StrategyRun struct {
	Name      string `json:"name"`
	Added     int    `json:"added"`
	Satisfied bool   `json:"satisfied"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report describes how a pool was built.
type Report struct {
	Fetch       FetchStats    `json:"fetch"`
	Strategies  []StrategyRun `json:"strategies,omitempty"`
	DeadlineHit bool          `json:"deadlineHit,omitempty"`
	// DeadlineExceeded is set when the budget was already spent on entry.
	DeadlineExceeded bool `json:"deadlineExceeded,omitempty"`
}
