package httpx_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"extracts from RemoteAddr", "192.168.1.1:12345", nil, "192.168.1.1"},
		{"ignores X-Forwarded-For", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "192.168.1.1"},
		{"ignores X-Real-IP", "192.168.1.1:12345", map[string]string{"X-Real-IP": "203.0.113.2"}, "192.168.1.1"},
		{"RemoteAddr without port", "192.168.1.9", nil, "192.168.1.9"},
		{"IPv6 RemoteAddr", "[2001:db8::1]:443", nil, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.IPKeyExtractor(req))
		})
	}
}

func TestClientIPKeyExtractor(t *testing.T) {
	trusted, err := httpx.ParseTrustedProxies("10.0.0.0/8, 192.168.1.1")
	require.NoError(t, err)
	extract := httpx.ClientIPKeyExtractor(trusted)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted peer headers ignored", "198.51.100.7:1000", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.7"},
		{"trusted peer uses forwarded client", "10.1.2.3:1000", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "203.0.113.1"},
		{"skips trusted hops from the right", "10.1.2.3:1000", map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1, 10.9.9.9"}, "203.0.113.1"},
		{"spoofed left entries do not win", "10.1.2.3:1000", map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.5"}, "203.0.113.5"},
		{"falls back to X-Real-IP", "192.168.1.1:1000", map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
		{"trusted peer without headers", "10.1.2.3:1000", nil, "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, extract(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := httpx.ParseTrustedProxies(" 10.0.0.1/8 , 127.0.0.1,,::1 ")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "10.0.0.0/8", got[0].String())
	require.Equal(t, "127.0.0.1/32", got[1].String())
	require.Equal(t, "::1/128", got[2].String())

	none, err := httpx.ParseTrustedProxies("")
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = httpx.ParseTrustedProxies("10.0.0.0/8,not-an-ip")
	require.Error(t, err)
}

func TestRateLimitByIP_ForwardedForRotationDoesNotReset(t *testing.T) {
	limited := httpx.RateLimitByIP(httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	})(okHandler)

	codes := make([]int, 0, 4)
	for i := range 4 {
		req := requestFrom("198.51.100.7:4000")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestCompositeKeyExtractor(t *testing.T) {
	extractor := httpx.CompositeKeyExtractor(":",
		httpx.AccountIDKeyExtractor,
		httpx.IPKeyExtractor,
	)

	t.Run("combines multiple extractors", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345")
		req = req.WithContext(httpx.WithAccountID(req.Context(), "acct-1"))
		require.Equal(t, "acct-1:192.168.1.1", extractor(req))
	})

	t.Run("skips empty values", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", extractor(requestFrom("192.168.1.1:12345")))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests under limit", func(t *testing.T) {
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 5,
			Window:            time.Second,
			Burst:             5,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 5 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			Burst:             3,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 2,
			Window:            time.Minute,
			Burst:             2,
		}, httpx.IPKeyExtractor)(okHandler)

		for range 2 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec1 := httptest.NewRecorder()
		limited.ServeHTTP(rec1, requestFrom("192.168.1.1:12345"))
		require.Equal(t, http.StatusTooManyRequests, rec1.Code)

		rec2 := httptest.NewRecorder()
		limited.ServeHTTP(rec2, requestFrom("192.168.1.2:12345"))
		require.Equal(t, http.StatusOK, rec2.Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, func(r *http.Request) string { return "" })(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("custom exceeded handler", func(t *testing.T) {
		var called bool
		limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
			OnExceeded: func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
				called = true
				require.Positive(t, retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("slow down"))
			},
		}, httpx.IPKeyExtractor)(okHandler)

		limited.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("10.0.0.1:1"))

		require.True(t, called)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "slow down", rec.Body.String())
	})
}

func TestRateLimitByAccount(t *testing.T) {
	limited := httpx.RateLimitByAccount(httpx.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	})(okHandler)

	withAccount := func(id string) *http.Request {
		req := requestFrom("192.168.1.1:12345")
		return req.WithContext(httpx.WithAccountID(req.Context(), id))
	}

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, withAccount("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, withAccount("alice"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Same IP, different account
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, withAccount("bob"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitByIP(t *testing.T) {
	limited := httpx.RateLimitByIP(httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	})(okHandler)

	for range 2 {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDefaultRateLimitProfiles(t *testing.T) {
	p := httpx.DefaultRateLimitProfiles()

	for name, config := range map[string]httpx.RateLimitConfig{
		"strict":   p.Strict,
		"moderate": p.Moderate,
		"lenient":  p.Lenient,
	} {
		t.Run(name, func(t *testing.T) {
			require.Greater(t, config.RequestsPerWindow, 0, "requests per window must be positive")
			require.Greater(t, config.Window, time.Duration(0), "window must be positive")
			require.Greater(t, config.Burst, 0, "burst must be positive")
		})
	}

	require.Less(t, p.Strict.RequestsPerWindow, p.Moderate.RequestsPerWindow)
	require.Less(t, p.Moderate.RequestsPerWindow, p.Lenient.RequestsPerWindow)
}

func TestRateLimitHeaders(t *testing.T) {
	limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	}, httpx.IPKeyExtractor)(okHandler)

	rec1 := httptest.NewRecorder()
	limited.ServeHTTP(rec1, requestFrom("192.168.1.1:12345"))
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	limited.ServeHTTP(rec2, requestFrom("192.168.1.1:12345"))

	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
	require.NotEmpty(t, rec2.Header().Get("Retry-After"), "should include Retry-After header")
	require.Equal(t, "1", rec2.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1m0s", rec2.Header().Get("X-RateLimit-Window"))
	require.Equal(t, "no-store", rec2.Header().Get("Cache-Control"))
	require.Contains(t, rec2.Body.String(), "RATE_LIMIT_EXCEEDED")
}

// Benchmark with many different IPs (tests sync.Map performance)
func BenchmarkRateLimitManyIPs(b *testing.B) {
	limited := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
		RequestsPerWindow: 1000000,
		Window:            time.Minute,
		Burst:             1000,
	}, httpx.IPKeyExtractor)(okHandler)

	for i := 0; b.Loop(); i++ {
		req := requestFrom(fmt.Sprintf("192.168.%d.%d:12345", i%255, (i/255)%255))
		limited.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func TestParseRateLimitFromEnv(t *testing.T) {
	defaultConfig := httpx.RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		Burst:             10,
	}

	tests := []struct {
		name string
		env  map[string]string
		want httpx.RateLimitConfig
	}{
		{"no env vars uses defaults", nil, defaultConfig},
		{
			"override requests",
			map[string]string{"RATELIMIT_TEST_REQUESTS": "50"},
			httpx.RateLimitConfig{RequestsPerWindow: 50, Window: time.Minute, Burst: 10},
		},
		{
			"override all",
			map[string]string{
				"RATELIMIT_TEST_REQUESTS":   "200",
				"RATELIMIT_TEST_WINDOW_SEC": "30",
				"RATELIMIT_TEST_BURST":      "250",
			},
			httpx.RateLimitConfig{RequestsPerWindow: 200, Window: 30 * time.Second, Burst: 250},
		},
		{
			"invalid values use defaults",
			map[string]string{
				"RATELIMIT_TEST_REQUESTS":   "invalid",
				"RATELIMIT_TEST_WINDOW_SEC": "-10",
				"RATELIMIT_TEST_BURST":      "0",
			},
			defaultConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got := httpx.ParseRateLimitFromEnv("TEST", defaultConfig)
			require.Equal(t, tt.want.RequestsPerWindow, got.RequestsPerWindow)
			require.Equal(t, tt.want.Window, got.Window)
			require.Equal(t, tt.want.Burst, got.Burst)
		})
	}
}

func TestProfilesFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "1000")
	t.Setenv("RATELIMIT_STRICT_BURST", "1000")

	defaults := httpx.DefaultRateLimitProfiles()
	p := httpx.ProfilesFromEnv(defaults)

	require.Equal(t, 1000, p.Strict.RequestsPerWindow)
	require.Equal(t, 1000, p.Strict.Burst)
	require.Equal(t, defaults.Moderate.RequestsPerWindow, p.Moderate.RequestsPerWindow)
}
