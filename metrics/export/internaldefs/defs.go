package internaldefs

import (
	"github.com/maxmusicschool/schoolauth"
)

type CounterDef struct {
	ID   schoolauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   schoolauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "schoolauth_audit_dropped_total"

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: schoolauth.MetricLoginSuccess, Name: "schoolauth_login_success_total", Help: "Successful logins."},
	{ID: schoolauth.MetricLoginFailure, Name: "schoolauth_login_failure_total", Help: "Logins rejected for bad credentials or backend errors."},
	{ID: schoolauth.MetricLoginRateLimited, Name: "schoolauth_login_rate_limited_total", Help: "Auth requests rejected by the auth rate-limit policy."},
	{ID: schoolauth.MetricLoginInactive, Name: "schoolauth_login_inactive_total", Help: "Logins with valid credentials for inactive or held accounts."},
	{ID: schoolauth.MetricRefreshSuccess, Name: "schoolauth_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: schoolauth.MetricRefreshFailure, Name: "schoolauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: schoolauth.MetricLogout, Name: "schoolauth_logout_total", Help: "Logouts."},
	{ID: schoolauth.MetricSessionRevoked, Name: "schoolauth_session_revoked_total", Help: "Refresh sessions revoked after a status change."},
	{ID: schoolauth.MetricValidateFailure, Name: "schoolauth_validate_failure_total", Help: "Rejected access tokens."},
	{ID: schoolauth.MetricAuthorizeDenied, Name: "schoolauth_authorize_denied_total", Help: "Role checks that denied access."},
	{ID: schoolauth.MetricRateLimitHit, Name: "schoolauth_rate_limit_hit_total", Help: "Requests denied by any rate-limit policy."},
	{ID: schoolauth.MetricCacheHit, Name: "schoolauth_cache_hit_total", Help: "Cache-aside reads served from Redis."},
	{ID: schoolauth.MetricCacheMiss, Name: "schoolauth_cache_miss_total", Help: "Cache-aside reads loaded from the record store."},
	{ID: schoolauth.MetricCacheBypass, Name: "schoolauth_cache_bypass_total", Help: "Reads that skipped the cache while it was degraded."},
	{ID: schoolauth.MetricCacheInvalidateFailed, Name: "schoolauth_cache_invalidate_failed_total", Help: "Invalidations deferred because Redis was unreachable."},
	{ID: schoolauth.MetricCachePendingFlushed, Name: "schoolauth_cache_pending_flushed_total", Help: "Flushes of deferred invalidations."},
}

var HistogramDefs = []HistogramDef{
	{ID: schoolauth.MetricValidateLatency, Name: "schoolauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds of the latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names the bounds in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets and ignoring extra ones.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
