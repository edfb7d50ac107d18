package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memora-app/memora/internal/shared"
	"github.com/memora-app/memora/internal/users"
)

// Repository provides PostgreSQL backed persistence for usage counters and
// tier ceilings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureFresh applies the lazy window reset. Zeroing the stale counters and
// advancing the reset markers happen in one statement so a reset is never
// half-applied, and running it twice in the same window is a no-op.
func (r *Repository) EnsureFresh(ctx context.Context, userID string, now time.Time) error {
	dayStart := DayStart(now)
	monthStart := MonthStart(now)
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_usage SET
			memories_today      = CASE WHEN last_daily_reset < $2 THEN 0 ELSE memories_today END,
			searches_today      = CASE WHEN last_daily_reset < $2 THEN 0 ELSE searches_today END,
			last_daily_reset    = CASE WHEN last_daily_reset < $2 THEN $2 ELSE last_daily_reset END,
			memories_this_month = CASE WHEN last_monthly_reset < $3 THEN 0 ELSE memories_this_month END,
			images_this_month   = CASE WHEN last_monthly_reset < $3 THEN 0 ELSE images_this_month END,
			voice_this_month    = CASE WHEN last_monthly_reset < $3 THEN 0 ELSE voice_this_month END,
			last_monthly_reset  = CASE WHEN last_monthly_reset < $3 THEN $3 ELSE last_monthly_reset END
		WHERE user_id = $1`, userID, dayStart, monthStart)
	if err != nil {
		return fmt.Errorf("quota: reset counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The usage row is provisioned at signup; its absence means the
		// deployment invariant is broken, not that usage is zero.
		return fmt.Errorf("quota: usage row missing for user %s: %w", userID, shared.ErrConfiguration)
	}
	return nil
}

// Counters returns the user's current counters.
func (r *Repository) Counters(ctx context.Context, userID string) (*Counters, error) {
	var c Counters
	err := r.pool.QueryRow(ctx, `
		SELECT memories_today, memories_this_month, images_this_month,
		       voice_this_month, searches_today, storage_bytes,
		       last_daily_reset, last_monthly_reset
		FROM user_usage WHERE user_id = $1`, userID).
		Scan(&c.MemoriesToday, &c.MemoriesThisMonth, &c.ImagesThisMonth,
			&c.VoiceThisMonth, &c.SearchesToday, &c.StorageBytes,
			&c.LastDailyReset, &c.LastMonthlyReset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("quota: usage row missing for user %s: %w", userID, shared.ErrConfiguration)
		}
		return nil, fmt.Errorf("quota: load counters: %w", err)
	}
	return &c, nil
}

// TierLimits returns the static ceilings for a tier.
func (r *Repository) TierLimits(ctx context.Context, tier users.Tier) (*TierLimits, error) {
	var tl TierLimits
	tl.Tier = tier
	err := r.pool.QueryRow(ctx, `
		SELECT memories_per_day, memories_per_month, images_per_month,
		       voice_per_month, searches_per_day, storage_bytes
		FROM tier_limits WHERE tier = $1`, string(tier)).
		Scan(&tl.MemoriesPerDay, &tl.MemoriesPerMonth, &tl.ImagesPerMonth,
			&tl.VoicePerMonth, &tl.SearchesPerDay, &tl.StorageBytes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("quota: limits missing for tier %s: %w", tier, shared.ErrConfiguration)
		}
		return nil, fmt.Errorf("quota: load tier limits: %w", err)
	}
	return &tl, nil
}

// Snapshot returns the joined view of a user's counters and ceilings.
func (r *Repository) Snapshot(ctx context.Context, userID string) (*Usage, error) {
	var (
		u    Usage
		tier string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT u.tier,
		       uu.memories_today, uu.memories_this_month, uu.images_this_month,
		       uu.voice_this_month, uu.searches_today, uu.storage_bytes,
		       uu.last_daily_reset, uu.last_monthly_reset,
		       tl.memories_per_day, tl.memories_per_month, tl.images_per_month,
		       tl.voice_per_month, tl.searches_per_day, tl.storage_bytes
		FROM users u
		JOIN user_usage uu ON uu.user_id = u.id
		JOIN tier_limits tl ON tl.tier = u.tier
		WHERE u.id = $1`, userID).
		Scan(&tier,
			&u.Counters.MemoriesToday, &u.Counters.MemoriesThisMonth, &u.Counters.ImagesThisMonth,
			&u.Counters.VoiceThisMonth, &u.Counters.SearchesToday, &u.Counters.StorageBytes,
			&u.Counters.LastDailyReset, &u.Counters.LastMonthlyReset,
			&u.Limits.MemoriesPerDay, &u.Limits.MemoriesPerMonth, &u.Limits.ImagesPerMonth,
			&u.Limits.VoicePerMonth, &u.Limits.SearchesPerDay, &u.Limits.StorageBytes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMissing(ctx, userID)
		}
		return nil, fmt.Errorf("quota: snapshot: %w", err)
	}
	parsed, err := users.ParseTier(tier)
	if err != nil {
		return nil, err
	}
	u.Tier = parsed
	u.Limits.Tier = parsed
	return &u, nil
}

// Reservation reports the post-increment state after an admitted operation.
// Windows that do not govern the resource carry Unlimited ceilings.
type Reservation struct {
	DailyUsed    int64
	MonthlyUsed  int64
	DailyLimit   int64
	MonthlyLimit int64
}

// TryReserve atomically admits and increments in a single conditional
// update: the row only changes when the post-increment value stays within
// every governing ceiling. A nil reservation with nil error means denied.
// Concurrent callers at limit-1 can never both succeed.
func (r *Repository) TryReserve(ctx context.Context, userID string, resource Resource) (*Reservation, error) {
	query, scan := reserveQuery(resource)
	res := &Reservation{DailyLimit: Unlimited, MonthlyLimit: Unlimited}
	err := scan(r.pool.QueryRow(ctx, query, userID), res)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("quota: reserve %s: %w", resource, err)
	}
	return res, nil
}

func reserveQuery(resource Resource) (string, func(pgx.Row, *Reservation) error) {
	switch resource {
	case ResourceMemories:
		return `
			UPDATE user_usage uu SET
				memories_today = uu.memories_today + 1,
				memories_this_month = uu.memories_this_month + 1,
				updated_at = NOW()
			FROM users u
			JOIN tier_limits tl ON tl.tier = u.tier
			WHERE uu.user_id = $1 AND u.id = uu.user_id
			  AND (tl.memories_per_day = -1 OR uu.memories_today < tl.memories_per_day)
			  AND (tl.memories_per_month = -1 OR uu.memories_this_month < tl.memories_per_month)
			RETURNING uu.memories_today, uu.memories_this_month, tl.memories_per_day, tl.memories_per_month`,
			func(row pgx.Row, res *Reservation) error {
				return row.Scan(&res.DailyUsed, &res.MonthlyUsed, &res.DailyLimit, &res.MonthlyLimit)
			}
	case ResourceSearches:
		return `
			UPDATE user_usage uu SET
				searches_today = uu.searches_today + 1,
				updated_at = NOW()
			FROM users u
			JOIN tier_limits tl ON tl.tier = u.tier
			WHERE uu.user_id = $1 AND u.id = uu.user_id
			  AND (tl.searches_per_day = -1 OR uu.searches_today < tl.searches_per_day)
			RETURNING uu.searches_today, tl.searches_per_day`,
			func(row pgx.Row, res *Reservation) error {
				return row.Scan(&res.DailyUsed, &res.DailyLimit)
			}
	case ResourceImages:
		return `
			UPDATE user_usage uu SET
				images_this_month = uu.images_this_month + 1,
				updated_at = NOW()
			FROM users u
			JOIN tier_limits tl ON tl.tier = u.tier
			WHERE uu.user_id = $1 AND u.id = uu.user_id
			  AND (tl.images_per_month = -1 OR uu.images_this_month < tl.images_per_month)
			RETURNING uu.images_this_month, tl.images_per_month`,
			func(row pgx.Row, res *Reservation) error {
				return row.Scan(&res.MonthlyUsed, &res.MonthlyLimit)
			}
	default: // ResourceVoice
		return `
			UPDATE user_usage uu SET
				voice_this_month = uu.voice_this_month + 1,
				updated_at = NOW()
			FROM users u
			JOIN tier_limits tl ON tl.tier = u.tier
			WHERE uu.user_id = $1 AND u.id = uu.user_id
			  AND (tl.voice_per_month = -1 OR uu.voice_this_month < tl.voice_per_month)
			RETURNING uu.voice_this_month, tl.voice_per_month`,
			func(row pgx.Row, res *Reservation) error {
				return row.Scan(&res.MonthlyUsed, &res.MonthlyLimit)
			}
	}
}

func (r *Repository) classifyMissing(ctx context.Context, userID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("quota: snapshot: %w", err)
	}
	if !exists {
		return shared.ErrUserNotFound
	}
	return fmt.Errorf("quota: usage row missing for user %s: %w", userID, shared.ErrConfiguration)
}
