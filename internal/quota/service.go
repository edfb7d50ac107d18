package quota

import (
	"context"
	"time"

	"github.com/memora-app/memora/internal/users"
)

// RepositoryPort defines data access for counters and reservations.
type RepositoryPort interface {
	EnsureFresh(ctx context.Context, userID string, now time.Time) error
	Counters(ctx context.Context, userID string) (*Counters, error)
	Snapshot(ctx context.Context, userID string) (*Usage, error)
	TryReserve(ctx context.Context, userID string, resource Resource) (*Reservation, error)
}

// Enforcer gates expensive operations against tier-based usage ceilings.
type Enforcer struct {
	repo   RepositoryPort
	limits LimitsLoader
	now    func() time.Time
}

// NewEnforcer builds an Enforcer. The limits source is normally the Redis
// cache over the repository.
func NewEnforcer(repo RepositoryPort, limits LimitsLoader) *Enforcer {
	return &Enforcer{repo: repo, limits: limits, now: time.Now}
}

// Check answers "would this operation be admitted" without consuming quota.
// It is advisory by nature: only Reserve is authoritative under concurrency.
func (e *Enforcer) Check(ctx context.Context, userID string, tier users.Tier, resource Resource) (*Decision, error) {
	now := e.now()
	if err := e.repo.EnsureFresh(ctx, userID, now); err != nil {
		return nil, err
	}
	counters, err := e.repo.Counters(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits, err := e.limits.TierLimits(ctx, tier)
	if err != nil {
		return nil, err
	}
	return decide(resource, counters, limits, now), nil
}

// Reserve admits the operation and consumes one unit of quota in a single
// atomic step: the underlying conditional update only succeeds when the
// post-increment counters stay within every governing ceiling, so two
// concurrent calls at limit-1 can never both pass.
func (e *Enforcer) Reserve(ctx context.Context, userID string, resource Resource) (*Decision, error) {
	now := e.now()
	if err := e.repo.EnsureFresh(ctx, userID, now); err != nil {
		return nil, err
	}

	res, err := e.repo.TryReserve(ctx, userID, resource)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return allowedDecision(resource, res, now), nil
	}

	// Denied: rebuild the full picture to report which window blocks and
	// when it resets.
	snapshot, err := e.repo.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return decide(resource, &snapshot.Counters, &snapshot.Limits, now), nil
}

// Usage returns the freshly reset counters joined with tier ceilings.
func (e *Enforcer) Usage(ctx context.Context, userID string) (*Usage, error) {
	now := e.now()
	if err := e.repo.EnsureFresh(ctx, userID, now); err != nil {
		return nil, err
	}
	return e.repo.Snapshot(ctx, userID)
}

func allowedDecision(resource Resource, res *Reservation, now time.Time) *Decision {
	d := &Decision{Allowed: true, Resource: resource}
	dailyRemaining := remaining(res.DailyLimit, res.DailyUsed)
	monthlyRemaining := remaining(res.MonthlyLimit, res.MonthlyUsed)
	d.Remaining = minRemaining(dailyRemaining, monthlyRemaining)
	d.Limit, d.ResetAt = reportedWindow(resource, res.DailyLimit, res.MonthlyLimit, now, true, true)
	return d
}

func decide(resource Resource, c *Counters, limits *TierLimits, now time.Time) *Decision {
	var (
		dailyUsed, monthlyUsed   int64
		dailyLimit, monthlyLimit = Unlimited, Unlimited
	)
	switch resource {
	case ResourceMemories:
		dailyUsed, dailyLimit = c.MemoriesToday, limits.MemoriesPerDay
		monthlyUsed, monthlyLimit = c.MemoriesThisMonth, limits.MemoriesPerMonth
	case ResourceSearches:
		dailyUsed, dailyLimit = c.SearchesToday, limits.SearchesPerDay
	case ResourceImages:
		monthlyUsed, monthlyLimit = c.ImagesThisMonth, limits.ImagesPerMonth
	case ResourceVoice:
		monthlyUsed, monthlyLimit = c.VoiceThisMonth, limits.VoicePerMonth
	}

	dailyOK := dailyLimit == Unlimited || dailyUsed < dailyLimit
	monthlyOK := monthlyLimit == Unlimited || monthlyUsed < monthlyLimit

	d := &Decision{
		Allowed:   dailyOK && monthlyOK,
		Remaining: minRemaining(remaining(dailyLimit, dailyUsed), remaining(monthlyLimit, monthlyUsed)),
		Resource:  resource,
	}
	d.Limit, d.ResetAt = reportedWindow(resource, dailyLimit, monthlyLimit, now, dailyOK, monthlyOK)
	return d
}

// reportedWindow picks the ceiling and reset boundary to surface. On denial
// the earlier-resetting window that caused it wins: a blown daily cap
// reports the next midnight even when a monthly cap also applies.
func reportedWindow(resource Resource, dailyLimit, monthlyLimit int64, now time.Time, dailyOK, monthlyOK bool) (int64, time.Time) {
	daily, monthly := resource.Windows()
	switch {
	case daily && !dailyOK:
		return dailyLimit, NextDailyReset(now)
	case monthly && !monthlyOK:
		return monthlyLimit, NextMonthlyReset(now)
	case daily:
		return dailyLimit, NextDailyReset(now)
	default:
		return monthlyLimit, NextMonthlyReset(now)
	}
}

func remaining(limit, used int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// minRemaining treats Unlimited as larger than any bounded remainder.
func minRemaining(a, b int64) int64 {
	switch {
	case a == Unlimited:
		return b
	case b == Unlimited:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
