// Package geo implements the best-effort unusual-login check. It keeps each
// user's last seen login network in Redis and raises an alert log line when a
// login arrives from a different network. Alerts are throttled per user so a
// flapping client cannot flood the log.
package geo

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/bastionhq/bastion-audit/internal/telemetry"
)

// lastSeenTTL bounds how long a stale network sticks to a user. A login after
// this window is treated as a fresh baseline, not an anomaly.
const lastSeenTTL = 90 * 24 * time.Hour

// Checker compares each successful login's source network against the user's
// previous one. It implements audit.UnusualLoginChecker and is invoked
// fire-and-forget, so every failure here is logged and swallowed.
type Checker struct {
	rdb           *redis.Client
	limiter       *redis_rate.Limiter
	alertsPerHour int
}

// NewChecker creates a Checker on the given Redis client. alertsPerHour caps
// alert volume per username; zero or negative disables throttling.
func NewChecker(rdb *redis.Client, alertsPerHour int) *Checker {
	return &Checker{
		rdb:           rdb,
		limiter:       redis_rate.NewLimiter(rdb),
		alertsPerHour: alertsPerHour,
	}
}

// Check records the login network for username and alerts when it differs
// from the previously seen one. Comparison is at /16 granularity for IPv4 and
// /32 for IPv6: carrier-grade NAT hops inside one provider should not alert.
func (c *Checker) Check(ctx context.Context, username, ip string) error {
	network := loginNetwork(ip)
	if network == "" {
		return nil
	}

	key := "audit:login:network:" + username
	previous, err := c.rdb.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("loading last seen network: %w", err)
	}

	if err := c.rdb.Set(ctx, key, network, lastSeenTTL).Err(); err != nil {
		return fmt.Errorf("storing login network: %w", err)
	}

	if previous == "" || previous == network {
		return nil
	}

	if c.alertsPerHour > 0 {
		res, err := c.limiter.Allow(ctx, "audit:login:alerts:"+username, redis_rate.PerHour(c.alertsPerHour))
		if err != nil {
			return fmt.Errorf("checking alert budget: %w", err)
		}
		if res.Allowed == 0 {
			return nil
		}
	}

	telemetry.UnusualLoginsTotal.Inc()
	slog.Warn("login from unusual network",
		"username", username,
		"ip", ip,
		"network", network,
		"previous_network", previous,
	)
	return nil
}

// loginNetwork maps an IP to its comparison key. Unparseable input yields ""
// and the check is skipped.
func loginNetwork(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.0.0/16", v4[0], v4[1])
	}
	return parsed.Mask(net.CIDRMask(32, 128)).String() + "/32"
}
