package synel

import (
	"sync/atomic"
)

// ClientMetrics contains atomic metrics for a client connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// FrameSendCount indicates the number of frames written.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of frames read, including skipped ones.
	FrameRecvCount atomic.Uint64
	// FrameSkipCount indicates the number of frames skipped by the response filter.
	FrameSkipCount atomic.Uint64
	// TimeoutRetryCount indicates the number of requests resent after a timeout.
	TimeoutRetryCount atomic.Uint64
	// CRCRetryCount indicates the number of requests resent after a bad checksum.
	CRCRetryCount atomic.Uint64
	// ExchangeErrCount indicates the number of exchanges that failed.
	ExchangeErrCount atomic.Uint64
}

func (m *ClientMetrics) incFrameSendCount()    { m.FrameSendCount.Add(1) }
func (m *ClientMetrics) incFrameRecvCount()    { m.FrameRecvCount.Add(1) }
func (m *ClientMetrics) incFrameSkipCount()    { m.FrameSkipCount.Add(1) }
func (m *ClientMetrics) incTimeoutRetryCount() { m.TimeoutRetryCount.Add(1) }
func (m *ClientMetrics) incCRCRetryCount()     { m.CRCRetryCount.Add(1) }
func (m *ClientMetrics) incExchangeErrCount()  { m.ExchangeErrCount.Add(1) }

// ListenerMetrics contains atomic metrics for a push listener.
type ListenerMetrics struct {
	// ConnAcceptCount indicates the number of accepted connections.
	ConnAcceptCount atomic.Uint64
	// ConnActiveGauge indicates the number of open connections.
	ConnActiveGauge atomic.Int64
	// IdleCloseCount indicates the number of connections closed for inactivity.
	IdleCloseCount atomic.Uint64
	// NotificationCount indicates the number of notifications handed to the handler.
	NotificationCount atomic.Uint64
	// FrameDropCount indicates the number of frames that were malformed or not a notification.
	FrameDropCount atomic.Uint64
	// LineResetCount indicates the number of line resets sent after a backlog.
	LineResetCount atomic.Uint64
	// HandlerPanicCount indicates the number of recovered handler panics.
	HandlerPanicCount atomic.Uint64
}

// ListenerMetricsSnapshot is a point-in-time copy of ListenerMetrics.
type ListenerMetricsSnapshot struct {
	ConnAcceptCount   uint64 `json:"conn_accept_count"`
	ConnActiveGauge   int64  `json:"conn_active"`
	IdleCloseCount    uint64 `json:"idle_close_count"`
	NotificationCount uint64 `json:"notification_count"`
	FrameDropCount    uint64 `json:"frame_drop_count"`
	LineResetCount    uint64 `json:"line_reset_count"`
	HandlerPanicCount uint64 `json:"handler_panic_count"`
}

// Snapshot returns the current values.
func (m *ListenerMetrics) Snapshot() ListenerMetricsSnapshot {
	return ListenerMetricsSnapshot{
		ConnAcceptCount:   m.ConnAcceptCount.Load(),
		ConnActiveGauge:   m.ConnActiveGauge.Load(),
		IdleCloseCount:    m.IdleCloseCount.Load(),
		NotificationCount: m.NotificationCount.Load(),
		FrameDropCount:    m.FrameDropCount.Load(),
		LineResetCount:    m.LineResetCount.Load(),
		HandlerPanicCount: m.HandlerPanicCount.Load(),
	}
}
