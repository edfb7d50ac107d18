package quota

import (
	"fmt"
	"time"

	"github.com/memora-app/memora/internal/users"
)

// Resource identifies a quota-governed operation kind. The set is closed:
// anything else fails at the parsing boundary instead of slipping through as
// an unvalidated string.
type Resource string

const (
	ResourceMemories Resource = "memories"
	ResourceImages   Resource = "images"
	ResourceVoice    Resource = "voice"
	ResourceSearches Resource = "searches"
)

// ParseResource validates a raw resource name.
func ParseResource(raw string) (Resource, error) {
	switch Resource(raw) {
	case ResourceMemories, ResourceImages, ResourceVoice, ResourceSearches:
		return Resource(raw), nil
	}
	return "", fmt.Errorf("quota: unknown resource %q", raw)
}

// Windows reports which reset windows govern the resource. Memories are
// capped both per day and per month; images and voice monthly; searches
// daily.
func (r Resource) Windows() (daily, monthly bool) {
	switch r {
	case ResourceMemories:
		return true, true
	case ResourceSearches:
		return true, false
	default:
		return false, true
	}
}

// Unlimited is the sentinel ceiling meaning no cap for a resource/window.
const Unlimited int64 = -1

// TierLimits is the static per-tier configuration, read-only at runtime.
type TierLimits struct {
	Tier             users.Tier `json:"tier"`
	MemoriesPerDay   int64      `json:"memoriesPerDay"`
	MemoriesPerMonth int64      `json:"memoriesPerMonth"`
	ImagesPerMonth   int64      `json:"imagesPerMonth"`
	VoicePerMonth    int64      `json:"voicePerMonth"`
	SearchesPerDay   int64      `json:"searchesPerDay"`
	StorageBytes     int64      `json:"storageBytes"`
}

// Counters holds a user's current usage. Values are never negative.
type Counters struct {
	MemoriesToday     int64
	MemoriesThisMonth int64
	ImagesThisMonth   int64
	VoiceThisMonth    int64
	SearchesToday     int64
	StorageBytes      int64
	LastDailyReset    time.Time
	LastMonthlyReset  time.Time
}

// Usage is the joined view of a user's counters and tier ceilings.
type Usage struct {
	Tier     users.Tier
	Counters Counters
	Limits   TierLimits
}

// Decision is the admission verdict for one operation.
type Decision struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	ResetAt   time.Time
	Resource  Resource
}

// DayStart truncates t to the start of its UTC calendar day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart truncates t to the first of its UTC calendar month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextDailyReset is the upcoming UTC midnight boundary.
func NextDailyReset(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1)
}

// NextMonthlyReset is the first of the next UTC month.
func NextMonthlyReset(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}
