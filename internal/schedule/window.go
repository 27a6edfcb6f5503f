package schedule

import "time"

// WorkWindow は業務日・業務時間とタイムゾーン。
type WorkWindow struct {
	StartHour int
	EndHour   int
	Days      []time.Weekday
	Location  *time.Location
}

// StartMinute は業務開始の分（0時起点）を返す。
func (w WorkWindow) StartMinute() int { return w.StartHour * 60 }

// EndMinute は業務終了の分（0時起点）を返す。
func (w WorkWindow) EndMinute() int { return w.EndHour * 60 }

// Local は時刻を業務タイムゾーンに変換する。
func (w WorkWindow) Local(t time.Time) time.Time {
	if w.Location == nil {
		return t
	}
	return t.In(w.Location)
}

// IsWorkDay は t（業務タイムゾーン）が業務日かを返す。
func (w WorkWindow) IsWorkDay(t time.Time) bool {
	day := w.Local(t).Weekday()
	for _, d := range w.Days {
		if d == day {
			return true
		}
	}
	return false
}

// MinuteOfDay は業務タイムゾーンでの0時からの経過分を返す。
func (w WorkWindow) MinuteOfDay(t time.Time) int {
	l := w.Local(t)
	return l.Hour()*60 + l.Minute()
}

// InHours は t が業務日かつ業務時間内かを返す。
func (w WorkWindow) InHours(t time.Time) bool {
	if !w.IsWorkDay(t) {
		return false
	}
	m := w.MinuteOfDay(t)
	return m >= w.StartMinute() && m < w.EndMinute()
}

// At は t と同じ業務日の minute 分の時刻を返す。
func (w WorkWindow) At(t time.Time, minute int) time.Time {
	l := w.Local(t)
	midnight := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
	return midnight.Add(time.Duration(minute) * time.Minute)
}

// RemainingWorkDays は t の日を含む、週（月曜始まり）の残りの業務日数を返す。
func (w WorkWindow) RemainingWorkDays(t time.Time) int {
	l := w.Local(t)
	n := 0
	for d := l; ; d = d.AddDate(0, 0, 1) {
		if w.IsWorkDay(d) {
			n++
		}
		if d.Weekday() == time.Sunday {
			break
		}
	}
	return n
}

// WeekStart は t を含む週の月曜0時（業務タイムゾーン）を返す。
func (w WorkWindow) WeekStart(t time.Time) time.Time {
	l := w.Local(t)
	offset := (int(l.Weekday()) + 6) % 7
	monday := l.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, l.Location())
}
