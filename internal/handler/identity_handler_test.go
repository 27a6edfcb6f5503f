package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/senderpool/internal/identity"
	"github.com/hitoshi/senderpool/internal/model"
)

func TestIdentityHandler_List_IncludesTodayCounters(t *testing.T) {
	svc := &mockIdentityService{
		listFn: func(ctx context.Context) ([]identity.Info, error) {
			return []identity.Info{
				{Identity: sampleIdentity(1), Today: model.IdentityCounters{Connects: 3, Likes: 7}},
			}, nil
		},
	}
	h := NewIdentityHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/identities", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []identityResponse
	decodeBody(t, w, &resp)
	if len(resp) != 1 || resp[0].ID != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp[0].Today == nil || resp[0].Today.Connects != 3 || resp[0].Today.Likes != 7 {
		t.Errorf("today = %+v, want connects=3 likes=7", resp[0].Today)
	}
	if resp[0].Quotas.Connect.Daily != 20 {
		t.Errorf("quotas.connect.daily = %d, want 20", resp[0].Quotas.Connect.Daily)
	}
}

func TestIdentityHandler_Create_PassesQuotas(t *testing.T) {
	var got identity.CreateInput
	svc := &mockIdentityService{
		createFn: func(ctx context.Context, in identity.CreateInput) (*model.Identity, error) {
			got = in
			return sampleIdentity(5), nil
		},
	}
	h := NewIdentityHandler(svc)

	body := `{"name":"sender-1","email":"sender1@example.com","quotas":{"connect":{"daily":5,"weekly":25}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/identities", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if got.Name != "sender-1" || got.Email != "sender1@example.com" {
		t.Errorf("input = %+v", got)
	}
	if got.Quotas == nil || got.Quotas.Connect.Daily != 5 || got.Quotas.Connect.Weekly != 25 {
		t.Errorf("quotas = %+v, want connect 5/25", got.Quotas)
	}
}

func TestIdentityHandler_Create_NoQuotasUsesDefault(t *testing.T) {
	svc := &mockIdentityService{
		createFn: func(ctx context.Context, in identity.CreateInput) (*model.Identity, error) {
			if in.Quotas != nil {
				t.Errorf("quotas 未指定時は nil を渡すべき: %+v", in.Quotas)
			}
			return sampleIdentity(5), nil
		},
	}
	h := NewIdentityHandler(svc)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/identities", bytes.NewBufferString(`{"name":"a"}`)))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

func TestIdentityHandler_Create_InvalidJSON(t *testing.T) {
	h := NewIdentityHandler(&mockIdentityService{})

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/identities", bytes.NewBufferString(`{`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q", body["code"])
	}
}

func TestIdentityHandler_Get_InvalidID(t *testing.T) {
	h := NewIdentityHandler(&mockIdentityService{
		getFn: func(ctx context.Context, id int64) (*identity.Info, error) {
			t.Error("不正なIDでサービスを呼び出してはならない")
			return nil, nil
		},
	})

	for _, raw := range []string{"abc", "0", "-3"} {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/identities/"+raw, nil), "id", raw)
		w := httptest.NewRecorder()
		h.Get(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("id=%q: status = %d, want 400", raw, w.Code)
		}
	}
}

func TestIdentityHandler_Get_NotFound(t *testing.T) {
	h := NewIdentityHandler(&mockIdentityService{
		getFn: func(ctx context.Context, id int64) (*identity.Info, error) {
			return nil, model.NewIdentityNotFoundError(id)
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/identities/9", nil), "id", "9")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeIdentityNotFound {
		t.Errorf("code = %q", body["code"])
	}
}

func TestIdentityHandler_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		call    func(h *IdentityHandler) http.HandlerFunc
		want    model.IdentityStatus
		urlPath string
	}{
		{"pause", func(h *IdentityHandler) http.HandlerFunc { return h.Pause }, model.IdentityStatusPaused, "/pause"},
		{"resume", func(h *IdentityHandler) http.HandlerFunc { return h.Resume }, model.IdentityStatusActive, "/resume"},
		{"expire", func(h *IdentityHandler) http.HandlerFunc { return h.Expire }, model.IdentityStatusCredentialExpired, "/expire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID int64
			var gotStatus model.IdentityStatus
			h := NewIdentityHandler(&mockIdentityService{
				setStatusFn: func(ctx context.Context, id int64, status model.IdentityStatus) (*model.Identity, error) {
					gotID, gotStatus = id, status
					i := sampleIdentity(id)
					i.Status = status
					return i, nil
				},
			})

			req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/identities/2"+tt.urlPath, nil), "id", "2")
			w := httptest.NewRecorder()
			tt.call(h)(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if gotID != 2 || gotStatus != tt.want {
				t.Errorf("SetStatus(%d, %q), want (2, %q)", gotID, gotStatus, tt.want)
			}
			var resp identityResponse
			decodeBody(t, w, &resp)
			if resp.Status != string(tt.want) {
				t.Errorf("resp.status = %q, want %q", resp.Status, tt.want)
			}
		})
	}
}

func TestIdentityHandler_UpdateQuotas_InvalidQuota(t *testing.T) {
	h := NewIdentityHandler(&mockIdentityService{
		updateQuotasFn: func(ctx context.Context, id int64, quotas model.Quotas) (*model.Identity, error) {
			if quotas.Like.Daily != 90 || quotas.Like.Weekly != 10 {
				t.Errorf("quotas.like = %+v", quotas.Like)
			}
			return nil, model.NewInvalidQuotaError("日次上限が週次上限を超えています")
		},
	})

	body := `{"like":{"daily":90,"weekly":10}}`
	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/api/identities/1/quotas", bytes.NewBufferString(body)), "id", "1")
	w := httptest.NewRecorder()
	h.UpdateQuotas(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeInvalidQuota {
		t.Errorf("code = %q", body["code"])
	}
}

func TestIdentityHandler_List_InternalError(t *testing.T) {
	h := NewIdentityHandler(&mockIdentityService{
		listFn: func(ctx context.Context) ([]identity.Info, error) {
			return nil, errors.New("db down")
		},
	})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/identities", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %q", body["code"])
	}
}
