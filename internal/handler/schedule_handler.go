package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/senderpool/internal/schedule"
)

// SchedulePlanner はスケジュールハンドラーが必要とする枠計算のインターフェース。
type SchedulePlanner interface {
	Window() schedule.WorkWindow
	Today(ctx context.Context, now time.Time) (*schedule.DayPlan, error)
}

// ScheduleHandler は当日の作業枠を返すHTTPハンドラー。
type ScheduleHandler struct {
	planner SchedulePlanner
	now     func() time.Time
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(planner SchedulePlanner) *ScheduleHandler {
	return &ScheduleHandler{planner: planner, now: time.Now}
}

type slotResponse struct {
	IdentityID   int64     `json:"identity_id"`
	IdentityName string    `json:"identity_name"`
	Pending      int       `json:"pending"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Active       bool      `json:"active"`
}

type scheduleResponse struct {
	WorkDay  bool           `json:"work_day"`
	Timezone string         `json:"timezone"`
	Now      time.Time      `json:"now"`
	Slots    []slotResponse `json:"slots"`
}

// Today は当日の枠をその場で計算して返す。枠は保存しない。
// GET /api/schedule
func (h *ScheduleHandler) Today(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	plan, err := h.planner.Today(r.Context(), now)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	window := h.planner.Window()
	minute := window.MinuteOfDay(now)
	resp := scheduleResponse{
		WorkDay:  plan.WorkDay,
		Timezone: window.Local(now).Location().String(),
		Now:      window.Local(now),
		Slots:    make([]slotResponse, 0, len(plan.Slots)),
	}
	for _, s := range plan.Slots {
		slot := slotResponse{
			IdentityID: s.IdentityID,
			Pending:    plan.Pending[s.IdentityID],
			StartsAt:   window.At(now, s.StartMinute),
			EndsAt:     window.At(now, s.EndMinute),
			Active:     s.Contains(minute),
		}
		if identity, ok := plan.Identities[s.IdentityID]; ok {
			slot.IdentityName = identity.Name
		}
		resp.Slots = append(resp.Slots, slot)
	}
	writeJSON(w, http.StatusOK, resp)
}
