// Package redirect validates tenant-supplied OAuth redirect URIs against a
// host allow-list before they are ever sent to a provider.
package redirect

import (
	"net/url"
	"strings"

	"github.com/weddary/weddary/internal/observability/logger"
)

// Validate reports whether uri is acceptable: parsable, http(s), and with a
// host that equals an allowed suffix or ends with "." + suffix. Rejections
// are logged; the function has no other side effects.
func Validate(uri string, allowedHostSuffixes []string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		logger.L().Warn("redirect uri rejected: unparsable", logger.Component("redirect"))
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		logger.L().Warn("redirect uri rejected: scheme", logger.Component("redirect"), logger.Any("scheme", u.Scheme))
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		logger.L().Warn("redirect uri rejected: empty host", logger.Component("redirect"))
		return false
	}
	for _, suffix := range allowedHostSuffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	logger.L().Warn("redirect uri rejected: host not allowed", logger.Component("redirect"), logger.Any("host", host))
	return false
}
