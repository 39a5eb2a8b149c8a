package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter counts requests per client in fixed redis windows.
type RateLimiter struct {
	redisClient    *redis.Client
	trustedProxies []netip.Prefix
}

// NewRateLimiter builds a limiter. X-Forwarded-For is only honoured when the
// direct peer is one of trustedProxies, given as CIDRs or single addresses.
func NewRateLimiter(client *redis.Client, trustedProxies []string) (*RateLimiter, error) {
	rl := &RateLimiter{redisClient: client}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			addr = addr.Unmap()
			rl.trustedProxies = append(rl.trustedProxies, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		rl.trustedProxies = append(rl.trustedProxies, prefix.Masked())
	}
	return rl, nil
}

func (rl *RateLimiter) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP walks X-Forwarded-For from the right, past trusted proxies only.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !rl.trusted(remote) {
		return remote
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" || rl.trusted(hop) {
			continue
		}
		return hop
	}
	return remote
}

// hit counts one request and makes sure the window key expires, even when an
// earlier request left it without a ttl. EXPIRE NX needs redis 7.
func (rl *RateLimiter) hit(r *http.Request, key string, window time.Duration) (int64, error) {
	ctx := r.Context()
	var incr *redis.IntCmd
	_, err := rl.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Limit allows limit requests per window for each client ip. When redis is
// unreachable requests pass through.
func (rl *RateLimiter) Limit(keySuffix string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("rate_limit:%s:%s", keySuffix, rl.clientIP(r))

			count, err := rl.hit(r, key, window)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(limit) {
				ttl, _ := rl.redisClient.TTL(r.Context(), key).Result()
				seconds := int(ttl.Seconds())
				if seconds <= 0 {
					seconds = int(window.Seconds())
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success":     false,
					"code":        "rate_limited",
					"message":     "Too many requests",
					"retry_after": seconds,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
