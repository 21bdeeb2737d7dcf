package spotify

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-dual-gravity/internal/logging"
)

const breakerName = "spotify-api"

// newBreaker opens after at least 10 requests with a 60% failure rate and
// probes again after 30 seconds.
func newBreaker(observer Observer) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// 4xx other than 429 means the request was bad, not that the API is down.
			return err == nil || !isServerSide(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logging.Warn().Str("from", from.String()).Str("to", to.String()).Msg("spotify: circuit breaker state change")
			observer.BreakerStateChanged(from.String(), to.String())
		},
	})
}

// isServerSide reports whether err looks like an API-side or transport failure.
func isServerSide(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	return true
}
