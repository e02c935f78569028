package network

import (
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — метрики сетевой подсистемы.
//
//   - voxel_sessions — число игроков в состоянии Active
//   - voxel_messages_in_total{type} / voxel_messages_out_total{type}
//   - voxel_rejected_edits_total{reason}
//   - voxel_volatile_dropped_total — отброшенные позиции при заполненной очереди
//   - voxel_kicks_total{reason}
type Metrics struct {
	sessions        prometheus.Gauge
	messagesIn      *prometheus.CounterVec
	messagesOut     *prometheus.CounterVec
	rejectedEdits   *prometheus.CounterVec
	volatileDropped prometheus.Counter
	kicks           *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg. nil — без регистрации (тесты).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "sessions",
			Help:      "Количество активных игроков.",
		}),
		messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "messages_in_total",
			Help:      "Принятые сообщения клиентов по типу.",
		}, []string{"type"}),
		messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "messages_out_total",
			Help:      "Отправленные сообщения сервера по типу.",
		}, []string{"type"}),
		rejectedEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "rejected_edits_total",
			Help:      "Отклонённые правки блоков по причине.",
		}, []string{"reason"}),
		volatileDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "volatile_dropped_total",
			Help:      "Отброшенные сообщения без гарантии доставки.",
		}),
		kicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "kicks_total",
			Help:      "Принудительные отключения по причине.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.sessions, m.messagesIn, m.messagesOut, m.rejectedEdits, m.volatileDropped, m.kicks)
	}
	return m
}

func (m *Metrics) messageIn(t protocol.MsgType) {
	m.messagesIn.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) messageOut(t protocol.MsgType) {
	m.messagesOut.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) rejected(r RejectReason) {
	m.rejectedEdits.WithLabelValues(string(r)).Inc()
}

func (m *Metrics) kicked(reason string) {
	m.kicks.WithLabelValues(reason).Inc()
}
