package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	cut := now.Add(-h.cfg.LoginIPWindow)
	count, err := countLoginFailuresByIP(ctx, h.pool, ip, cut)
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.LoginIPMax {
		return true, h.cfg.LoginIPWindow, nil
	}
	return false, 0, nil
}

func (h *Handler) checkLoginUserThrottle(ctx context.Context, userID string, now time.Time) (bool, time.Duration, error) {
	if strings.TrimSpace(userID) == "" {
		return false, 0, nil
	}
	// Failures must stay countable for as long as the lockout they earn,
	// otherwise a severe lockout would lapse once the window rolls over.
	cut := now.Add(-userLockoutLookback(h.cfg))
	count, err := countLoginFailuresByUser(ctx, h.pool, userID, cut)
	if err != nil {
		return false, 0, err
	}
	if d, locked := userLockoutDuration(h.cfg, count); locked {
		return true, d, nil
	}
	return false, 0, nil
}

// userLockoutDuration maps a failure count to the lockout it earns.
// LoginUserMax is the baseline throttle beneath the progressive tiers.
func userLockoutDuration(cfg Config, count int) (time.Duration, bool) {
	switch {
	case cfg.LockoutSevereThreshold > 0 && count >= cfg.LockoutSevereThreshold:
		return cfg.LockoutSevereDuration, true
	case cfg.LockoutLongThreshold > 0 && count >= cfg.LockoutLongThreshold:
		return cfg.LockoutLongDuration, true
	case cfg.LockoutShortThreshold > 0 && count >= cfg.LockoutShortThreshold:
		return cfg.LockoutShortDuration, true
	case cfg.LoginUserMax > 0 && count >= cfg.LoginUserMax:
		return cfg.LoginUserWindow, true
	}
	return 0, false
}

// userLockoutLookback is the longest period a failure can still matter.
func userLockoutLookback(cfg Config) time.Duration {
	lookback := cfg.LoginUserWindow
	for _, d := range []time.Duration{cfg.LockoutShortDuration, cfg.LockoutLongDuration, cfg.LockoutSevereDuration} {
		if d > lookback {
			lookback = d
		}
	}
	return lookback
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeKind(w, KindRateLimited, "Too many attempts, try again later")
}

// ---- audit queries ----

func countLoginFailuresByIP(ctx context.Context, pool *pgxpool.Pool, ip net.IP, since time.Time) (int, error) {
	if pool == nil || ip == nil {
		return 0, nil
	}
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM paydesk.audit_log
		WHERE action = 'auth.login.failed'
		  AND ip = $1
		  AND created_at >= $2
	`, ip.String(), since).Scan(&n)
	return n, err
}

func countLoginFailuresByUser(ctx context.Context, pool *pgxpool.Pool, userID string, since time.Time) (int, error) {
	if pool == nil || strings.TrimSpace(userID) == "" {
		return 0, nil
	}
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM paydesk.audit_log
		WHERE action = 'auth.login.failed'
		  AND user_id = $1
		  AND created_at >= $2
	`, userID, since).Scan(&n)
	return n, err
}
