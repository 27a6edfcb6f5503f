package schedule

import (
	"testing"

	"github.com/hitoshi/senderpool/internal/model"
)

func identity(id int64, status model.IdentityStatus) *model.Identity {
	return &model.Identity{ID: id, Status: status}
}

func TestComputeSlots_ThreeIdentitiesNineToSix(t *testing.T) {
	candidates := []Candidate{
		{Identity: identity(3, model.IdentityStatusActive), Pending: 4},
		{Identity: identity(1, model.IdentityStatusActive), Pending: 10},
		{Identity: identity(2, model.IdentityStatusActive), Pending: 1},
	}

	slots := ComputeSlots(candidates, 540, 1080, 5)

	want := []TimeSlot{
		{IdentityID: 1, StartMinute: 540, EndMinute: 716},
		{IdentityID: 2, StartMinute: 721, EndMinute: 897},
		{IdentityID: 3, StartMinute: 902, EndMinute: 1078},
	}
	if len(slots) != len(want) {
		t.Fatalf("len(slots) = %d, want %d", len(slots), len(want))
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slots[%d] = %+v, want %+v", i, slots[i], want[i])
		}
	}
	if slack := 1080 - slots[2].EndMinute; slack != 2 {
		t.Errorf("末尾の余白 = %d, want 2", slack)
	}
}

func TestComputeSlots_ExcludesInactiveAndIdle(t *testing.T) {
	candidates := []Candidate{
		{Identity: identity(1, model.IdentityStatusActive), Pending: 5},
		{Identity: identity(2, model.IdentityStatusActive), Pending: 0},
		{Identity: identity(3, model.IdentityStatusCredentialExpired), Pending: 20},
		{Identity: identity(4, model.IdentityStatusPaused), Pending: 3},
	}

	slots := ComputeSlots(candidates, 540, 1080, 5)

	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1: %+v", len(slots), slots)
	}
	if slots[0] != (TimeSlot{IdentityID: 1, StartMinute: 540, EndMinute: 1080}) {
		t.Errorf("slots[0] = %+v", slots[0])
	}
}

func TestComputeSlots_NoUsableTime(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		gap        int
		n          int
	}{
		{"候補なし", 540, 1080, 5, 0},
		{"ギャップが業務時間を超える", 540, 550, 10, 2},
		{"1人あたり0分", 540, 542, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cs []Candidate
			for i := 0; i < tt.n; i++ {
				cs = append(cs, Candidate{Identity: identity(int64(i+1), model.IdentityStatusActive), Pending: 1})
			}
			if got := ComputeSlots(cs, tt.start, tt.end, tt.gap); len(got) != 0 {
				t.Errorf("ComputeSlots = %+v, want empty", got)
			}
		})
	}
}

// 同じ入力からは同じ枠が得られ、どの2枠も重ならない
func TestComputeSlots_DeterministicAndDisjoint(t *testing.T) {
	cs := []Candidate{
		{Identity: identity(4, model.IdentityStatusActive), Pending: 1},
		{Identity: identity(2, model.IdentityStatusActive), Pending: 1},
		{Identity: identity(9, model.IdentityStatusActive), Pending: 1},
		{Identity: identity(1, model.IdentityStatusActive), Pending: 1},
	}
	a := ComputeSlots(cs, 540, 1080, 5)
	b := ComputeSlots(cs, 540, 1080, 5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("再計算で結果が変わりました: %+v vs %+v", a[i], b[i])
		}
		if i > 0 && a[i].StartMinute < a[i-1].EndMinute+5 {
			t.Errorf("枠 %d が前の枠とギャップなしで接しています: %+v %+v", i, a[i-1], a[i])
		}
	}
}

func TestActiveSlot(t *testing.T) {
	slots := []TimeSlot{
		{IdentityID: 1, StartMinute: 540, EndMinute: 716},
		{IdentityID: 2, StartMinute: 721, EndMinute: 897},
	}
	tests := []struct {
		minute int
		want   int64
		ok     bool
	}{
		{540, 1, true},
		{715, 1, true},
		{716, 0, false}, // ギャップ
		{721, 2, true},
		{900, 0, false}, // 余白
		{300, 0, false}, // 業務時間外
	}
	for _, tt := range tests {
		got, ok := ActiveSlot(slots, tt.minute)
		if ok != tt.ok || got.IdentityID != tt.want {
			t.Errorf("ActiveSlot(%d) = %+v,%v; want %d,%v", tt.minute, got, ok, tt.want, tt.ok)
		}
	}
}
