package pprofserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path, remote string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://admin"+path, nil)
	req.RemoteAddr = remote
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGuard(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	cases := []struct {
		name   string
		user   string
		pass   string
		remote string
		auth   []string
		want   int
	}{
		{name: "loopback without auth", remote: "127.0.0.1:12345", want: http.StatusTeapot},
		{name: "ipv6 loopback", remote: "[::1]:80", want: http.StatusTeapot},
		{name: "remote, no credentials configured", remote: "8.8.8.8:1", auth: []string{"", ""}, want: http.StatusUnauthorized},
		{name: "remote, wrong password", user: "ops", pass: "secret", remote: "8.8.8.8:1", auth: []string{"ops", "nope"}, want: http.StatusUnauthorized},
		{name: "remote, wrong user", user: "ops", pass: "secret", remote: "8.8.8.8:1", auth: []string{"dev", "secret"}, want: http.StatusUnauthorized},
		{name: "remote, missing header", user: "ops", pass: "secret", remote: "8.8.8.8:1", want: http.StatusUnauthorized},
		{name: "remote, valid credentials", user: "ops", pass: "secret", remote: "8.8.8.8:1", auth: []string{"ops", "secret"}, want: http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rr := get(t, guard(tc.user, tc.pass, next), "/debug/pprof/", tc.remote, tc.auth...)
			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnauthorized {
				require.Equal(t, realm, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestFromLoopback(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"127.0.0.1:123": true,
		"127.0.0.1":     true,
		" 127.0.0.1 ":   true,
		"[::1]:123":     true,
		"::1":           true,
		"8.8.8.8:1":     false,
		"not-an-ip:1":   false,
		"":              false,
	} {
		require.Equal(t, want, fromLoopback(in), in)
	}
}

func TestDigestEq(t *testing.T) {
	t.Parallel()

	require.True(t, digestEq("abc", "abc"))
	require.False(t, digestEq("abc", "abd"))
	require.False(t, digestEq("a", "ab"))
}

func TestHandler_MetricsAndProfiles(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := Handler(Config{Gatherer: reg})

	rr := get(t, h, "/metrics", "127.0.0.1:1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "dispatch_test_total 1")

	require.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/cmdline", "127.0.0.1:1").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/goroutine", "127.0.0.1:1").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, h, "/metrics", "8.8.8.8:1").Code)
}

func TestHandler_NoGatherer(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusNotFound, get(t, Handler(Config{}), "/metrics", "127.0.0.1:1").Code)
}

func TestHandler_Readiness(t *testing.T) {
	t.Parallel()

	running := false
	h := Handler(Config{Probes: map[string]func() bool{
		"scheduler": func() bool { return running },
		"storage":   func() bool { return true },
	}})

	rr := get(t, h, "/readyz", "127.0.0.1:1")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, map[string]bool{"scheduler": false, "storage": true}, body)

	running = true
	require.Equal(t, http.StatusOK, get(t, h, "/readyz", "127.0.0.1:1").Code)

	require.Equal(t, http.StatusOK, get(t, Handler(Config{}), "/readyz", "127.0.0.1:1").Code)
}
