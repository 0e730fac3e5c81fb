// Package pprofserver serves the admin listener: profiling, metrics and readiness.
package pprofserver

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const realm = `Basic realm="admin"`

var profiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// Config stores admin server settings. Callers off the loopback interface need basic auth.
type Config struct {
	User string
	Pass string
	// Gatherer enables /metrics.
	Gatherer prometheus.Gatherer
	// Probes back /readyz; the listener is ready when every probe reports true.
	Probes map[string]func() bool
}

// Handler returns the admin mux.
func Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("GET /readyz", readiness(cfg.Probes))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	for _, name := range profiles {
		mux.Handle("/debug/pprof/"+name, pprof.Handler(name))
	}
	return guard(cfg.User, cfg.Pass, mux)
}

func readiness(probes map[string]func() bool) http.Handler {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := make(map[string]bool, len(names))
		code := http.StatusOK
		for _, name := range names {
			ok := probes[name]()
			status[name] = ok
			if !ok {
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}

// guard lets loopback callers through and asks everyone else for credentials.
// Empty credentials lock the listener to loopback.
func guard(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fromLoopback(r.RemoteAddr) || (user != "" && pass != "" && credentialsMatch(r, user, pass)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", realm)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func credentialsMatch(r *http.Request, user, pass string) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	// оба сравнения выполняются всегда, чтобы время ответа не выдавало верный логин
	userOK := digestEq(u, user)
	passOK := digestEq(p, pass)
	return userOK && passOK
}

// digestEq compares fixed-size digests so the timing is independent of the input lengths.
func digestEq(a, b string) bool {
	da, db := sha256.Sum256([]byte(a)), sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}

func fromLoopback(remoteAddr string) bool {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().IsLoopback()
	}
	addr, err := netip.ParseAddr(remoteAddr)
	return err == nil && addr.IsLoopback()
}
