package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

func TestRateLimiterPerCaller(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	var got []bool
	for _, caller := range []string{"a", "a", "a", "b"} {
		got = append(got, rl.Allow(caller))
	}
	want := []bool{true, true, false, true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Allow() mismatch (-want +got):\n%s", diff)
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("Allow(a) = false after refill, want true")
	}
}

func TestRateLimiterForgetsIdleCallers(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	rl.Allow("busy")

	now = now.Add(45 * time.Minute)
	rl.Allow("busy")

	now = now.Add(30 * time.Minute)
	rl.Allow("busy")

	if got := rl.size(); got != 1 {
		t.Errorf("buckets = %d, want 1", got)
	}
}

func TestJWTAuthClaims(t *testing.T) {
	signWith := func(secret string, claims jwt.Claims) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return signed
	}
	sign := func(claims jwt.Claims) string { return signWith(testSecret, claims) }
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		header     string
		wantCode   int
		wantCaller string
	}{
		{
			name:       "api key claim",
			header:     "Bearer " + sign(jwt.MapClaims{"api_key": "grader-1", "sub": "u-7", "exp": exp.Unix()}),
			wantCode:   http.StatusOK,
			wantCaller: "grader-1",
		},
		{
			name:       "subject fallback",
			header:     "Bearer " + sign(jwt.RegisteredClaims{Subject: "u-7", ExpiresAt: exp}),
			wantCode:   http.StatusOK,
			wantCaller: "u-7",
		},
		{
			name:     "expired",
			header:   "Bearer " + sign(jwt.RegisteredClaims{Subject: "u-7", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no expiry",
			header:   "Bearer " + sign(jwt.RegisteredClaims{Subject: "u-7"}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + signWith("other-secret", jwt.RegisteredClaims{ExpiresAt: exp}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "empty bearer",
			header:   "Bearer ",
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caller string
			router := gin.New()
			router.GET("/x", JWTAuthMiddleware(testSecret, ""), func(c *gin.Context) {
				caller = c.GetString(callerKey)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if caller != tt.wantCaller {
				t.Errorf("caller = %q, want %q", caller, tt.wantCaller)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RateLimitMiddleware(NewRateLimiter(0.001, 1)))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	var codes []int
	for range 2 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}

	want := []int{http.StatusOK, http.StatusTooManyRequests}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("status codes mismatch (-want +got):\n%s", diff)
	}
}
