package quota

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memora-app/memora/internal/platform/httpx"
	"github.com/memora-app/memora/internal/shared"
)

// Handler exposes the usage snapshot endpoint.
type Handler struct {
	logger   *slog.Logger
	enforcer *Enforcer
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, enforcer *Enforcer) *Handler {
	return &Handler{logger: logger, enforcer: enforcer}
}

// MountRoutes registers usage routes on the provided router. The caller
// wraps them with the bearer-auth middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleUsage)
}

type usagePayload struct {
	Tier              string `json:"tier"`
	MemoriesToday     int64  `json:"memoriesToday"`
	MemoriesThisMonth int64  `json:"memoriesThisMonth"`
	ImagesThisMonth   int64  `json:"imagesThisMonth"`
	VoiceThisMonth    int64  `json:"voiceThisMonth"`
	SearchesToday     int64  `json:"searchesToday"`
	StorageBytes      int64  `json:"storageBytes"`
	MemoriesPerDay    int64  `json:"memoriesPerDay"`
	MemoriesPerMonth  int64  `json:"memoriesPerMonth"`
	ImagesPerMonth    int64  `json:"imagesPerMonth"`
	VoicePerMonth     int64  `json:"voicePerMonth"`
	SearchesPerDay    int64  `json:"searchesPerDay"`
	StorageLimit      int64  `json:"storageLimit"`
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	usage, err := h.enforcer.Usage(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("load usage", slog.String("user_id", identity.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, usagePayload{
		Tier:              string(usage.Tier),
		MemoriesToday:     usage.Counters.MemoriesToday,
		MemoriesThisMonth: usage.Counters.MemoriesThisMonth,
		ImagesThisMonth:   usage.Counters.ImagesThisMonth,
		VoiceThisMonth:    usage.Counters.VoiceThisMonth,
		SearchesToday:     usage.Counters.SearchesToday,
		StorageBytes:      usage.Counters.StorageBytes,
		MemoriesPerDay:    usage.Limits.MemoriesPerDay,
		MemoriesPerMonth:  usage.Limits.MemoriesPerMonth,
		ImagesPerMonth:    usage.Limits.ImagesPerMonth,
		VoicePerMonth:     usage.Limits.VoicePerMonth,
		SearchesPerDay:    usage.Limits.SearchesPerDay,
		StorageLimit:      usage.Limits.StorageBytes,
	})
}
