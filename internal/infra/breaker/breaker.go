package breaker

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// RecipientError reports whether err was caused by a single recipient, such
// as an unknown mailbox or a blocked chat, rather than by the transport.
type RecipientError func(err error) bool

// New returns a breaker that opens after at least 3 requests in a minute
// with a failure ratio of 60% or more, and half-opens after a minute.
// Errors matched by isRecipient do not count as failures.
func New(name string, log *logrus.Entry, isRecipient RecipientError) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     60 * time.Second,
		IsSuccessful: func(err error) bool {
			return err == nil || (isRecipient != nil && isRecipient(err))
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log == nil {
				return
			}
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// Do runs fn through cb, discarding the result value.
func Do(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}
