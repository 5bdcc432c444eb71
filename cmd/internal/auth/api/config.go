package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// RefreshCookieName is the httpOnly cookie carrying the refresh token.
	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool

	// CSRFCookieName enables double-submit CSRF protection on the cookie
	// refresh path when non-empty.
	CSRFCookieName string
	CSRFHeaderName string

	// RequireVerifiedEmail blocks password login until the email code has
	// been consumed.
	RequireVerifiedEmail bool

	VerificationCodeTTL time.Duration

	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax    int
	LoginIPWindow time.Duration

	LoginUserMax    int
	LoginUserWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		RefreshCookieName:      envStr("PAYDESK_AUTH_REFRESH_COOKIE", "refreshToken"),
		CookiePath:             envStr("PAYDESK_AUTH_COOKIE_PATH", "/"),
		CookieDomain:           envStr("PAYDESK_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:           envBool("PAYDESK_AUTH_COOKIE_SECURE", true),
		CSRFCookieName:         envStr("PAYDESK_AUTH_CSRF_COOKIE", ""),
		CSRFHeaderName:         envStr("PAYDESK_AUTH_CSRF_HEADER", "X-CSRF-Token"),
		RequireVerifiedEmail:   envBool("PAYDESK_AUTH_REQUIRE_VERIFIED_EMAIL", true),
		VerificationCodeTTL:    envDuration("PAYDESK_AUTH_VERIFICATION_CODE_TTL", 15*time.Minute),
		TrustProxy:             envBool("PAYDESK_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:           envInt64("PAYDESK_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginIPMax:             envInt("PAYDESK_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:          envDuration("PAYDESK_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginUserMax:           envInt("PAYDESK_AUTH_LOGIN_USER_MAX", 5),
		LoginUserWindow:        envDuration("PAYDESK_AUTH_LOGIN_USER_WINDOW", 15*time.Minute),
		LockoutShortThreshold:  envInt("PAYDESK_AUTH_LOGIN_LOCKOUT_SHORT_THRESHOLD", 5),
		LockoutShortDuration:   envDuration("PAYDESK_AUTH_LOGIN_LOCKOUT_SHORT_DURATION", 5*time.Minute),
		LockoutLongThreshold:   envInt("PAYDESK_AUTH_LOGIN_LOCKOUT_LONG_THRESHOLD", 10),
		LockoutLongDuration:    envDuration("PAYDESK_AUTH_LOGIN_LOCKOUT_LONG_DURATION", 30*time.Minute),
		LockoutSevereThreshold: envInt("PAYDESK_AUTH_LOGIN_LOCKOUT_SEVERE_THRESHOLD", 20),
		LockoutSevereDuration:  envDuration("PAYDESK_AUTH_LOGIN_LOCKOUT_SEVERE_DURATION", 2*time.Hour),
	}

	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refreshToken"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginIPMax <= 0 {
		cfg.LoginIPMax = 20
	}
	if cfg.LoginUserMax <= 0 {
		cfg.LoginUserMax = 5
	}

	return cfg
}

func envStr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
