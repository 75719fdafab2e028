package ratelimit

import (
	"strings"
	"time"

	"github.com/jonathan/iiif-validator/internal/config"
)

// Unlimited marks an endpoint that is never limited.
const Unlimited = -1

// EndpointConfig overrides the default limit for one route.
type EndpointConfig struct {
	Path              string // exact path, or a prefix when it ends in "/"
	Method            string
	RequestsPerMinute int // Unlimited disables limiting for the route
	Burst             int // defaults to RequestsPerMinute if 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
	// IdleTTL is how long a client's limiter is kept after its last request.
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// FromConfig builds the limiter configuration from the service configuration.
func FromConfig(c config.RateLimitConfig) *Config {
	return &Config{
		Enabled:           c.Enabled,
		RequestsPerMinute: c.RequestsPerMinute,
		Burst:             c.Burst,
		CleanupInterval:   c.CleanupInterval,
		IdleTTL:           time.Hour,
		Whitelist:         parseIPList(c.Whitelist),
		EndpointConfigs:   DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route overrides.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/health", Method: "GET", RequestsPerMinute: Unlimited},
		// Posted manifests are validated without a fetch, but can be large.
		{Path: "/validate", Method: "POST", RequestsPerMinute: 60, Burst: 10},
	}
}

func parseIPList(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, entry := range list {
		for _, ip := range strings.Split(entry, ",") {
			ip = strings.TrimSpace(ip)
			if ip != "" {
				result[ip] = true
			}
		}
	}
	return result
}
