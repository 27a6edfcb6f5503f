package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/quota"
)

// WeekPlanner は週次上限の残りを業務日に配分するインターフェース。
type WeekPlanner interface {
	PlanWeek(ctx context.Context, identity *model.Identity, kind model.ActionType, now time.Time) ([]quota.DayBudget, error)
}

// PlanHandler はアイデンティティの今週の配分計画を返すHTTPハンドラー。
type PlanHandler struct {
	identities IdentityServiceInterface
	planner    WeekPlanner
	now        func() time.Time
}

// NewPlanHandler はPlanHandlerを生成する。
func NewPlanHandler(identities IdentityServiceInterface, planner WeekPlanner) *PlanHandler {
	return &PlanHandler{identities: identities, planner: planner, now: time.Now}
}

type dayBudgetResponse struct {
	Date   string `json:"date"`
	Budget int    `json:"budget"`
}

type planResponse struct {
	IdentityID int64               `json:"identity_id"`
	ActionType string              `json:"action_type"`
	Remaining  int                 `json:"remaining"`
	Days       []dayBudgetResponse `json:"days"`
}

// Week は今週の残り業務日への配分をその場で計算して返す。計画は保存しない。
// GET /api/identities/{id}/plan?action=connect
func (h *PlanHandler) Week(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentityID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	kind, err := parseActionParam(r.URL.Query().Get("action"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	info, err := h.identities.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	plan, err := h.planner.PlanWeek(r.Context(), info.Identity, kind, h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := planResponse{IdentityID: id, ActionType: kind.String(), Days: make([]dayBudgetResponse, len(plan))}
	for i, d := range plan {
		resp.Days[i] = dayBudgetResponse{Date: d.Date.Format(time.DateOnly), Budget: d.Budget}
		resp.Remaining += d.Budget
	}
	writeJSON(w, http.StatusOK, resp)
}
