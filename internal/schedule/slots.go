// Package schedule はアイデンティティごとの作業時間枠を計算する。
// 枠は毎回ゼロから再計算し、保存も変更もしない。
package schedule

import (
	"sort"

	"github.com/hitoshi/senderpool/internal/model"
)

// TimeSlot は業務時間内の1アイデンティティ分の時間枠。分単位で [StartMinute, EndMinute)。
type TimeSlot struct {
	IdentityID  int64
	StartMinute int
	EndMinute   int
}

// Contains は minute が枠内かを返す。
func (s TimeSlot) Contains(minute int) bool {
	return minute >= s.StartMinute && minute < s.EndMinute
}

// Length は枠の長さ（分）を返す。
func (s TimeSlot) Length() int {
	return s.EndMinute - s.StartMinute
}

// Candidate は枠の割り当て候補。
type Candidate struct {
	Identity *model.Identity
	Pending  int
}

// ComputeSlots はアクティブかつ処理待ちのあるアイデンティティに、ID昇順で連続した枠を割り当てる。
// 枠の長さは floor((業務時間 - (n-1)*gap) / n)。端数は末尾の余白として残る。
// 使える時間がない場合は空を返す。
func ComputeSlots(candidates []Candidate, workStart, workEnd, gap int) []TimeSlot {
	var eligible []int64
	for _, c := range candidates {
		if c.Identity != nil && c.Identity.IsActive() && c.Pending > 0 {
			eligible = append(eligible, c.Identity.ID)
		}
	}
	n := len(eligible)
	if n == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i] < eligible[j] })

	usable := (workEnd - workStart) - (n-1)*gap
	per := usable / n
	if usable <= 0 || per <= 0 {
		return nil
	}

	slots := make([]TimeSlot, n)
	start := workStart
	for i, id := range eligible {
		slots[i] = TimeSlot{IdentityID: id, StartMinute: start, EndMinute: start + per}
		start += per + gap
	}
	return slots
}

// ActiveSlot は minute を含む枠を返す。該当がない場合（ギャップ・余白・業務時間外）はfalse。
func ActiveSlot(slots []TimeSlot, minute int) (TimeSlot, bool) {
	for _, s := range slots {
		if s.Contains(minute) {
			return s, true
		}
	}
	return TimeSlot{}, false
}
