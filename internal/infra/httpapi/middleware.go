package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	headerCorrelationID = "X-Correlation-ID"
	headerUserEmail     = "X-User-Email"

	ctxCorrelationID = "correlation_id"
	ctxCaller        = "caller"
)

// CorrelationID tags every request with an id, reusing the client's one when sent.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ctxCorrelationID, id)
		c.Header(headerCorrelationID, id)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"ip":             c.ClientIP(),
			"correlation_id": c.GetString(ctxCorrelationID),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Info("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore holds a map of IP addresses to their rate limiters.
type rateLimiterStore struct {
	limiters  map[string]*clientLimiter
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	now       func() time.Time
	nextSweep time.Time
}

func newRateLimiterStore(limit rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*clientLimiter),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// getLimiter returns the rate limiter for a given IP, creating one if it doesn't exist.
// Limiters idle for longer than limiterIdleTTL are dropped along the way.
func (s *rateLimiterStore) getLimiter(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(s.nextSweep) {
		for key, cl := range s.limiters {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(s.limiters, key)
			}
		}
		s.nextSweep = now.Add(limiterIdleTTL)
	}

	cl, exists := s.limiters[ip]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit limits requests per client IP.
func RateLimit(limit rate.Limit, burst int, log *logrus.Entry) gin.HandlerFunc {
	store := newRateLimiterStore(limit, burst)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !store.getLimiter(ip).Allow() {
			log.WithField("ip", ip).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, APIResponse{Success: false, Message: "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}

// CallerResolver maps a header email to a user.
type CallerResolver interface {
	Identify(ctx context.Context, email string) (*user.User, error)
}

// Identify resolves the X-User-Email header to a user. Unknown or missing
// emails leave the request anonymous; handlers decide what that allows.
func Identify(resolver CallerResolver, log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetHeader(headerUserEmail)
		if email == "" {
			c.Next()
			return
		}
		u, err := resolver.Identify(c.Request.Context(), email)
		if err != nil {
			if !errors.Is(err, idb.ErrUserNotFound) {
				log.WithError(err).Error("Failed to resolve caller")
				c.AbortWithStatusJSON(http.StatusInternalServerError, APIResponse{Success: false, Message: "Internal server error"})
				return
			}
			c.Next()
			return
		}
		c.Set(ctxCaller, u)
		c.Next()
	}
}

// callerOf returns the identified caller or nil.
func callerOf(c *gin.Context) *user.User {
	v, ok := c.Get(ctxCaller)
	if !ok {
		return nil
	}
	u, _ := v.(*user.User)
	return u
}
