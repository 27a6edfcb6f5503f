// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/senderpool/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやポリシーエンジンから利用する。
type MetricsCollector interface {
	RecordAction(kind model.ActionType, status model.QueueStatus)
	RecordDecision(kind model.ActionType, reason string)
	RecordActionLatency(kind model.ActionType, duration time.Duration)
	RecordQuotaExhausted(kind model.ActionType)
	RecordTurn(processed int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	actions        *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	actionLatency  *prometheus.HistogramVec
	quotaExhausted *prometheus.CounterVec
	turns          prometheus.Counter
	turnActions    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "senderpool_actions_total",
			Help: "アクション種別と終了ステータス別のキュー項目数",
		}, []string{"action", "status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "senderpool_cooldown_decisions_total",
			Help: "クールダウン判定の理由別件数",
		}, []string{"action", "reason"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "senderpool_action_latency_seconds",
			Help:    "実行レイヤーでのアクション所要時間（秒）",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"action"}),
		quotaExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "senderpool_quota_exhausted_total",
			Help: "上限到達でターンを終えた回数",
		}, []string{"action"}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "senderpool_turns_total",
			Help: "実行したアイデンティティターンの合計数",
		}),
		turnActions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "senderpool_turn_processed_items",
			Help:    "1ターンで処理したキュー項目数",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
	}

	reg.MustRegister(
		c.actions,
		c.decisions,
		c.actionLatency,
		c.quotaExhausted,
		c.turns,
		c.turnActions,
	)

	return c
}

// RecordAction は終了したキュー項目を記録する。
func (c *Collector) RecordAction(kind model.ActionType, status model.QueueStatus) {
	c.actions.WithLabelValues(kind.String(), string(status)).Inc()
}

// RecordDecision はクールダウン判定を記録する。
func (c *Collector) RecordDecision(kind model.ActionType, reason string) {
	c.decisions.WithLabelValues(kind.String(), reason).Inc()
}

// RecordActionLatency はアクションの所要時間を記録する。
func (c *Collector) RecordActionLatency(kind model.ActionType, duration time.Duration) {
	c.actionLatency.WithLabelValues(kind.String()).Observe(duration.Seconds())
}

// RecordQuotaExhausted は上限到達を記録する。
func (c *Collector) RecordQuotaExhausted(kind model.ActionType) {
	c.quotaExhausted.WithLabelValues(kind.String()).Inc()
}

// RecordTurn は1ターンの終了を記録する。
func (c *Collector) RecordTurn(processed int) {
	c.turns.Inc()
	c.turnActions.Observe(float64(processed))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスが単独でスクレイプを受ける場合に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
