package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseActionType(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionType
		wantErr bool
	}{
		{"connect", ActionConnect, false},
		{"like", ActionLike, false},
		{"comment", ActionComment, false},
		{"message", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseActionType(tt.in)
			if tt.wantErr {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeInvalidActionType {
					t.Fatalf("ParseActionType(%q) error = %v, want INVALID_ACTION_TYPE", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseActionType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestRegistryEntry_SetRecord_UpdatesOnlyThatKind(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e := &RegistryEntry{TargetID: "https://linkedin.com/in/a"}

	e.SetRecord(ActionConnect, ActionRecord{IdentityID: 1, PerformedAt: now})
	e.SetRecord(ActionLike, ActionRecord{IdentityID: 2, PerformedAt: now.Add(time.Hour)})

	if got := e.Record(ActionConnect); got.IdentityID != 1 || !got.PerformedAt.Equal(now) {
		t.Errorf("connect record = %+v", got)
	}
	if got := e.Record(ActionLike); got.IdentityID != 2 {
		t.Errorf("like record = %+v", got)
	}
	if e.Record(ActionComment).Done() {
		t.Error("comment recordは未実行のはず")
	}
}

func TestRegistryEntry_Remaining(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e := &RegistryEntry{CooldownExpiresAt: now.Add(90 * time.Minute)}

	if got := e.Remaining(now); got != 90*time.Minute {
		t.Errorf("Remaining = %v, want 90m", got)
	}
	if got := e.Remaining(now.Add(2 * time.Hour)); got != 0 {
		t.Errorf("期限後のRemaining = %v, want 0", got)
	}
	// 期限ちょうどはクールダウン終了扱い
	if e.InCooldown(e.CooldownExpiresAt) {
		t.Error("期限ちょうどはクールダウン外のはず")
	}
}

func TestQuotas_ForAndSet(t *testing.T) {
	var q Quotas
	q.Set(ActionComment, Quota{Daily: 50, Weekly: 200})
	if got := q.For(ActionComment); got.Daily != 50 || got.Weekly != 200 {
		t.Errorf("For(comment) = %+v", got)
	}
	if got := q.For(ActionLike); got != (Quota{}) {
		t.Errorf("For(like) = %+v, want zero", got)
	}
}

func TestQuotas_UnknownActionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("未知の種別でpanicするはず")
		}
	}()
	Quotas{}.For(ActionType("poke"))
}

func TestCanonicalTargetID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://www.linkedin.com/in/jane-doe/", "https://linkedin.com/in/jane-doe", false},
		{"http://LinkedIn.com/in/jane-doe?trk=abc#top", "https://linkedin.com/in/jane-doe", false},
		{"linkedin.com/in/jane-doe", "https://linkedin.com/in/jane-doe", false},
		{"  https://linkedin.com/in/jane-doe  ", "https://linkedin.com/in/jane-doe", false},
		{"", "", true},
		{"https://linkedin.com/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalTargetID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CanonicalTargetID(%q) はエラーを返すはず", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanonicalTargetID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeltaFor(t *testing.T) {
	tests := []struct {
		status QueueStatus
		want   CounterDelta
	}{
		{QueueStatusCompleted, CounterDelta{Processed: 1, Succeeded: 1}},
		{QueueStatusFailed, CounterDelta{Processed: 1, Failed: 1}},
		{QueueStatusSkippedCooldown, CounterDelta{Processed: 1, Skipped: 1}},
		{QueueStatusSkipped, CounterDelta{Processed: 1, Skipped: 1}},
		{QueueStatusPending, CounterDelta{}},
	}
	for _, tt := range tests {
		if got := DeltaFor(tt.status); got != tt.want {
			t.Errorf("DeltaFor(%s) = %+v, want %+v", tt.status, got, tt.want)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewCampaignNotFoundError("c-1")
	if got := err.Error(); got != "[CAMPAIGN_NOT_FOUND] 指定されたキャンペーンが見つかりません: c-1" {
		t.Errorf("Error() = %q", got)
	}
}
