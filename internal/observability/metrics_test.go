package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/presencectl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordConnect(ResultOK)
	RecordFrame(DirectionOut, "handshake")
	RecordCommand("SET_ACTIVITY", ResultOK)
	ObserveHandshake(12 * time.Millisecond)
}

func TestRecordersIncrementLabelledSeries(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(ipcCommands.WithLabelValues("SET_ACTIVITY", "discord error"))
	RecordCommand("SET_ACTIVITY", "discord error")
	RecordCommand("SET_ACTIVITY", "discord error")
	after := testutil.ToFloat64(ipcCommands.WithLabelValues("SET_ACTIVITY", "discord error"))
	if after-before != 2 {
		t.Fatalf("commands delta got=%v want=2", after-before)
	}

	beforeFrames := testutil.ToFloat64(ipcFrames.WithLabelValues(DirectionIn, "ping"))
	RecordFrame(DirectionIn, "ping")
	if got := testutil.ToFloat64(ipcFrames.WithLabelValues(DirectionIn, "ping")) - beforeFrames; got != 1 {
		t.Fatalf("frames delta got=%v want=1", got)
	}
}
