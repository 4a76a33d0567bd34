package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/keygate-io/keygate/internal/app"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates the deployment's security posture: signing secret
// strength, verifier derivation cost and throttling configuration. All
// dependencies are optional; missing inputs degrade checks to warnings.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkDatabase(ctx),
		s.checkJWTSecret(),
		s.checkArgon2Cost(),
		s.checkRateLimit(),
		s.checkCacheTTL(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkDatabase(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          "database_reachable",
			Status:      StatusWarn,
			Message:     "Database handle not provided; unable to verify connectivity.",
			Remediation: "Run the audit with an open database connection.",
		}
	}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return Check{
			ID:          "database_reachable",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Database ping failed: %v", err),
			Remediation: "Resolve database connectivity before serving traffic.",
		}
	}

	return Check{
		ID:      "database_reachable",
		Status:  StatusPass,
		Message: "Database reachable.",
	}
}

func (s *AuditService) checkJWTSecret() Check {
	if s.cfg == nil {
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to assess signing secret strength.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	length := len(strings.TrimSpace(s.cfg.Auth.JWT.Secret))

	switch {
	case length == 0:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     "Missing issuer token signing secret.",
			Remediation: "Set KEYGATE_AUTH_JWT_SECRET to a random value of at least 32 bytes.",
		}
	case length < 32:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Issuer token signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < 48:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Issuer token signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of KEYGATE_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "jwt_secret_strength",
			Status:  StatusPass,
			Message: fmt.Sprintf("Issuer token signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkArgon2Cost() Check {
	if s.cfg == nil {
		return Check{
			ID:          "argon2_cost",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to evaluate verifier derivation cost.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	argon := s.cfg.Keys.Argon2
	const (
		minTime   = 2
		minMemory = 64 * 1024 // KiB
	)

	if argon.Time > 0 && argon.Time < minTime || argon.Memory > 0 && argon.Memory < minMemory {
		return Check{
			ID:          "argon2_cost",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Argon2id cost (time=%d, memory=%d KiB) is below the recommended floor.", argon.Time, argon.Memory),
			Remediation: "Keep time >= 2 and memory >= 65536 KiB so brute-forcing captured verifiers stays expensive.",
			Details:     map[string]any{"time": argon.Time, "memory_kib": argon.Memory},
		}
	}

	return Check{
		ID:      "argon2_cost",
		Status:  StatusPass,
		Message: "Argon2id derivation cost meets the recommended floor.",
		Details: map[string]any{"time": argon.Time, "memory_kib": argon.Memory},
	}
}

func (s *AuditService) checkRateLimit() Check {
	if s.cfg == nil {
		return Check{
			ID:          "validation_rate_limit",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to evaluate rate limiting.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	rl := s.cfg.RateLimit.Validation
	if rl.Limit <= 0 || rl.Window <= 0 {
		return Check{
			ID:          "validation_rate_limit",
			Status:      StatusFail,
			Message:     "Validation rate limiting is not configured.",
			Remediation: "Set a positive ceiling and window so secret guessing is throttled.",
		}
	}

	return Check{
		ID:      "validation_rate_limit",
		Status:  StatusPass,
		Message: fmt.Sprintf("Validation limited to %d requests per %s per caller.", rl.Limit, rl.Window),
	}
}

func (s *AuditService) checkCacheTTL() Check {
	if s.cfg == nil {
		return Check{
			ID:          "key_cache_ttl",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to evaluate cache lifetime.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	ttl := s.cfg.Keys.CacheTTL
	const maxRecommended = time.Hour

	if ttl > maxRecommended {
		return Check{
			ID:          "key_cache_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Key cache TTL (%s) exceeds the recommended maximum (%s).", ttl, maxRecommended),
			Remediation: "Lower the TTL; revocations only surface to cached entries after expiry.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      "key_cache_ttl",
		Status:  StatusPass,
		Message: fmt.Sprintf("Key cache TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}
