package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"

	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	ipcConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "ipc",
			Name:      "connects_total",
			Help:      "Connect attempts by result (ok or the error kind).",
		},
		[]string{"result"},
	)
	ipcFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "ipc",
			Name:      "frames_total",
			Help:      "Frames read and written.",
		},
		[]string{"direction", "opcode"},
	)
	ipcCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "ipc",
			Name:      "commands_total",
			Help:      "Commands sent by result (ok or the error kind).",
		},
		[]string{"cmd", "result"},
	)
	ipcHandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "presencectl",
			Subsystem: "ipc",
			Name:      "handshake_duration_seconds",
			Help:      "Time from connect start to READY.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ipcConnects, ipcFrames, ipcCommands, ipcHandshakeDuration)
	})
}

func RecordConnect(result string) {
	RegisterMetrics()
	ipcConnects.WithLabelValues(result).Inc()
}

func RecordFrame(direction, opcode string) {
	RegisterMetrics()
	ipcFrames.WithLabelValues(direction, opcode).Inc()
}

func RecordCommand(cmd, result string) {
	RegisterMetrics()
	ipcCommands.WithLabelValues(cmd, result).Inc()
}

func ObserveHandshake(duration time.Duration) {
	RegisterMetrics()
	ipcHandshakeDuration.Observe(duration.Seconds())
}
