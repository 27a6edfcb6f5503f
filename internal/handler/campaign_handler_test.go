package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/senderpool/internal/campaign"
	"github.com/hitoshi/senderpool/internal/model"
)

func sampleCampaign(id string, status model.CampaignStatus) *model.Campaign {
	return &model.Campaign{
		ID:          id,
		Name:        "Q4 outreach",
		ListID:      "list-1",
		ActionType:  model.ActionConnect,
		IdentityIDs: []int64{2, 1},
		Status:      status,
		Counters:    model.CampaignCounters{Total: 10},
		CreatedAt:   time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestCampaignHandler_Create(t *testing.T) {
	var got campaign.CreateInput
	h := NewCampaignHandler(&mockCampaignService{
		createFn: func(ctx context.Context, in campaign.CreateInput) (*model.Campaign, error) {
			got = in
			return sampleCampaign("c1", model.CampaignStatusDraft), nil
		},
	})

	body := `{"name":"Q4 outreach","list_id":"list-1","action_type":"connect","identity_ids":[2,1]}`
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if got.ActionType != model.ActionConnect || len(got.IdentityIDs) != 2 || got.IdentityIDs[0] != 2 {
		t.Errorf("input = %+v", got)
	}
	var resp campaignResponse
	decodeBody(t, w, &resp)
	if resp.Status != "draft" || resp.Counters.Total != 10 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCampaignHandler_Create_InvalidActionType(t *testing.T) {
	h := NewCampaignHandler(&mockCampaignService{
		createFn: func(ctx context.Context, in campaign.CreateInput) (*model.Campaign, error) {
			t.Error("不正な種別でサービスを呼び出してはならない")
			return nil, nil
		},
	})

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString(`{"name":"x","action_type":"poke"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeInvalidActionType {
		t.Errorf("code = %q", body["code"])
	}
}

func TestCampaignHandler_Create_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no identities", model.NewNoIdentitiesSelectedError(), http.StatusBadRequest},
		{"too many identities", model.NewIdentityLimitError(10), http.StatusConflict},
		{"unknown identity", model.NewIdentityNotFoundError(7), http.StatusNotFound},
		{"unknown list", model.NewListNotFoundError("l9"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCampaignHandler(&mockCampaignService{
				createFn: func(ctx context.Context, in campaign.CreateInput) (*model.Campaign, error) {
					return nil, tt.err
				},
			})

			body := `{"name":"x","list_id":"l9","action_type":"like","identity_ids":[7]}`
			w := httptest.NewRecorder()
			h.Create(w, httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString(body)))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCampaignHandler_Start(t *testing.T) {
	h := NewCampaignHandler(&mockCampaignService{
		startFn: func(ctx context.Context, id string) (*campaign.StartResult, error) {
			c := sampleCampaign(id, model.CampaignStatusRunning)
			c.Counters.InCooldown = 1
			return &campaign.StartResult{
				Campaign:    c,
				Queued:      9,
				Excluded:    []model.Target{{ID: "t-cool"}},
				PerIdentity: map[int64]int{1: 4, 2: 5},
			}, nil
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/start", nil), "id", "c1")
	w := httptest.NewRecorder()
	h.Start(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp startCampaignResponse
	decodeBody(t, w, &resp)
	if resp.Queued != 9 || resp.InCooldown != 1 || resp.PerIdentity[2] != 5 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Campaign.Status != "running" {
		t.Errorf("status = %q, want running", resp.Campaign.Status)
	}
}

func TestCampaignHandler_Start_InvalidState(t *testing.T) {
	h := NewCampaignHandler(&mockCampaignService{
		startFn: func(ctx context.Context, id string) (*campaign.StartResult, error) {
			return nil, model.NewInvalidCampaignStateError(model.CampaignStatusRunning, "start")
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/start", nil), "id", "c1")
	w := httptest.NewRecorder()
	h.Start(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeInvalidCampaignState {
		t.Errorf("code = %q", body["code"])
	}
}

func TestCampaignHandler_Transitions(t *testing.T) {
	var calls []string
	record := func(op string, status model.CampaignStatus) func(ctx context.Context, id string) (*model.Campaign, error) {
		return func(ctx context.Context, id string) (*model.Campaign, error) {
			calls = append(calls, op+":"+id)
			return sampleCampaign(id, status), nil
		}
	}
	svc := &mockCampaignService{
		pauseFn:  record("pause", model.CampaignStatusPaused),
		resumeFn: record("resume", model.CampaignStatusRunning),
		cancelFn: record("cancel", model.CampaignStatusCancelled),
	}
	h := NewCampaignHandler(svc)

	for _, step := range []struct {
		fn   http.HandlerFunc
		want string
	}{
		{h.Pause, "paused"},
		{h.Resume, "running"},
		{h.Cancel, "cancelled"},
	} {
		req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", "c7")
		w := httptest.NewRecorder()
		step.fn(w, req)

		var resp campaignResponse
		decodeBody(t, w, &resp)
		if w.Code != http.StatusOK || resp.Status != step.want {
			t.Errorf("status = %d/%q, want 200/%q", w.Code, resp.Status, step.want)
		}
	}
	want := []string{"pause:c7", "resume:c7", "cancel:c7"}
	for i := range want {
		if i >= len(calls) || calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestCampaignHandler_Items(t *testing.T) {
	h := NewCampaignHandler(&mockCampaignService{
		itemsFn: func(ctx context.Context, id string, status model.QueueStatus, limit int) ([]*model.QueueItem, error) {
			if id != "c1" || status != model.QueueStatusFailed || limit != defaultListLimit {
				t.Errorf("Items(%q, %q, %d)", id, status, limit)
			}
			return []*model.QueueItem{{
				ID: "q1", CampaignID: id, IdentityID: 2, TargetID: "t1",
				ActionType: model.ActionConnect, Status: model.QueueStatusFailed, Error: "timeout",
			}}, nil
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/campaigns/c1/items?status=failed", nil), "id", "c1")
	w := httptest.NewRecorder()
	h.Items(w, req)

	var resp []queueItemResponse
	decodeBody(t, w, &resp)
	if len(resp) != 1 || resp[0].Error != "timeout" || resp[0].IdentityID != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCampaignHandler_Items_UnknownStatus(t *testing.T) {
	h := NewCampaignHandler(&mockCampaignService{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/campaigns/c1/items?status=lost", nil), "id", "c1")
	w := httptest.NewRecorder()
	h.Items(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCampaignHandler_Get_NotFound(t *testing.T) {
	h := NewCampaignHandler(&mockCampaignService{
		getFn: func(ctx context.Context, id string) (*model.Campaign, error) {
			return nil, model.NewCampaignNotFoundError(id)
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/campaigns/zz", nil), "id", "zz")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
