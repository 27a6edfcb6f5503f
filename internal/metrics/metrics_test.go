package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/senderpool/internal/model"
)

// findMetric は指定された名前とラベルを持つメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("%s %v metric not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAction_CountsByKindAndStatus はアクション種別とステータス別に集計されることを検証する。
func TestRecordAction_CountsByKindAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAction(model.ActionConnect, model.QueueStatusCompleted)
	c.RecordAction(model.ActionConnect, model.QueueStatusCompleted)
	c.RecordAction(model.ActionConnect, model.QueueStatusFailed)

	m := findMetric(t, reg, "senderpool_actions_total", map[string]string{"action": "connect", "status": "completed"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("completed = %v, want 2", v)
	}
	m = findMetric(t, reg, "senderpool_actions_total", map[string]string{"action": "connect", "status": "failed"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("failed = %v, want 1", v)
	}
}

// TestRecordDecision_CountsByReason はクールダウン判定が理由別に集計されることを検証する。
func TestRecordDecision_CountsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDecision(model.ActionLike, "cooldown_active")

	m := findMetric(t, reg, "senderpool_cooldown_decisions_total", map[string]string{"action": "like", "reason": "cooldown_active"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("decisions = %v, want 1", v)
	}
}

// TestRecordActionLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordActionLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordActionLatency(model.ActionComment, 3*time.Second)

	m := findMetric(t, reg, "senderpool_action_latency_seconds", map[string]string{"action": "comment"})
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
	if s := m.GetHistogram().GetSampleSum(); s != 3 {
		t.Errorf("sample sum = %v, want 3", s)
	}
}

// TestRecordTurn_IncrementsTurnsAndObservesItems はターン数と処理件数が記録されることを検証する。
func TestRecordTurn_IncrementsTurnsAndObservesItems(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTurn(4)
	c.RecordTurn(0)
	c.RecordQuotaExhausted(model.ActionConnect)

	m := findMetric(t, reg, "senderpool_turns_total", nil)
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("turns = %v, want 2", v)
	}
	m = findMetric(t, reg, "senderpool_turn_processed_items", nil)
	if s := m.GetHistogram().GetSampleSum(); s != 4 {
		t.Errorf("processed sum = %v, want 4", s)
	}
	m = findMetric(t, reg, "senderpool_quota_exhausted_total", map[string]string{"action": "connect"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("quota exhausted = %v, want 1", v)
	}
}
