package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const callerKey = "caller"

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

// callerClaims are the claims read from an access token. The api_key claim,
// when present, identifies the caller for rate limiting.
type callerClaims struct {
	APIKey string `json:"api_key,omitempty"`
	jwt.RegisteredClaims
}

func (cc *callerClaims) caller() string {
	if cc.APIKey != "" {
		return cc.APIKey
	}
	return cc.Subject
}

// JWTAuthMiddleware accepts HMAC-signed bearer tokens. A non-empty issuer
// must match the token's iss claim.
func JWTAuthMiddleware(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header required")
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" || strings.ContainsRune(raw, ' ') {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization header format")
			return
		}

		var claims callerClaims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}); err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("Rejected access token")
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		if id := claims.caller(); id != "" {
			c.Set(callerKey, id)
		}
		c.Next()
	}
}

// RateLimiter hands out one token bucket per caller. Buckets idle for longer
// than idleTTL are dropped on the next sweep.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		idleTTL: time.Hour,
		now:     time.Now,
	}
}

// Allow reports whether caller may make a request now.
func (rl *RateLimiter) Allow(caller string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for id, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, id)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[caller]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[caller] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// RateLimitMiddleware limits requests per authenticated caller, or per client
// IP when the request carries no identity.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(callerKey)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}

		if !limiter.Allow(caller) {
			abortWith(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		c.Next()
	}
}

// ErrorHandlerMiddleware turns errors attached with c.Error into a 500 when
// the handler did not write a response itself.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		log.Error().Err(last.Err).Str("path", c.FullPath()).Msg("Request error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: last.Error(),
			Code:  "INTERNAL_ERROR",
		})
	}
}
