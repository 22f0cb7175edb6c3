package server

import (
	"net/http"
	"strings"
)

// SecurityConfig overrides individual hardening headers. Empty fields take
// the built-in values; FrameAncestors also feeds the CSP frame-ancestors
// directive when no full policy is supplied.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameAncestors        string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string
	ContentTypeOptions    string
}

// buildSecurityHeaders resolves the effective header set once, at chain
// construction time.
func buildSecurityHeaders(cfg SecurityConfig) map[string]string {
	frameAncestors := orDefault(cfg.FrameAncestors, "'none'")
	csp := cfg.ContentSecurityPolicy
	if csp == "" {
		csp = strings.Join([]string{
			"default-src 'self'",
			"connect-src 'self'",
			"img-src 'self' data:",
			"media-src 'self'",
			"object-src 'none'",
			"base-uri 'self'",
			"frame-ancestors " + frameAncestors,
			"form-action 'self'",
		}, "; ")
	}
	return map[string]string{
		"Content-Security-Policy": csp,
		"X-Frame-Options":         orDefault(cfg.FrameOptions, "DENY"),
		"X-Content-Type-Options":  orDefault(cfg.ContentTypeOptions, "nosniff"),
		"Referrer-Policy":         orDefault(cfg.ReferrerPolicy, "no-referrer"),
		"Permissions-Policy":      orDefault(cfg.PermissionsPolicy, "camera=(), microphone=(), geolocation=()"),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	headers := buildSecurityHeaders(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range headers {
			w.Header().Set(name, value)
		}
		next.ServeHTTP(w, r)
	})
}
