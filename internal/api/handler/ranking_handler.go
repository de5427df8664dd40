package handler

import (
	"net/http"
	"strconv"

	"codeduel/internal/api/middleware"
	"codeduel/internal/app/service"
	"codeduel/internal/common"
	"codeduel/internal/domain/repository"

	"github.com/go-chi/chi/v5"
)

type RankingHandler struct {
	ratingService *service.RatingService
	duelRepo      repository.DuelRepository
}

func NewRankingHandler(rs *service.RatingService, duelRepo repository.DuelRepository) *RankingHandler {
	return &RankingHandler{ratingService: rs, duelRepo: duelRepo}
}

func (h *RankingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.globalRankings)
	r.Get("/{userID}", h.userRanking)

	r.Group(func(authRouter chi.Router) {
		authRouter.Use(middleware.Authenticator)
		authRouter.Get("/me/duels", h.myDuelHistory)
		authRouter.Get("/me/duels/stats", h.myDuelStats)
	})
}

func (h *RankingHandler) globalRankings(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.ratingService.GlobalRankings(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, rankings)
}

func (h *RankingHandler) userRanking(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	ranking, err := h.ratingService.UserRanking(r.Context(), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, ranking)
}

func (h *RankingHandler) myDuelHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	history, err := h.duelRepo.ListHistoryByUser(r.Context(), userID, limit)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, history)
}

func (h *RankingHandler) myDuelStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	stats, err := h.duelRepo.GetDuelStats(r.Context(), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, stats)
}
