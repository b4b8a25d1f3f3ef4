package config

import "time"

// Application constants
const (
	AppName    = "dicommart"
	AppVersion = "1.0.0"

	// WebSocket settings
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024
	WebSocketPingPeriod      = 30 * time.Second
	WebSocketPongWait        = 60 * time.Second

	// Run settings
	DefaultRunHistory = 100
	MaxObjectSize     = 512 * 1024 * 1024 // 512MB

	// Output names
	WorkbookSummarySheet = "Summary"
	ObjectContentTypeCSV = "text/csv"
	ObjectContentTypeXLS = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// HTTP endpoints
const (
	APIBasePath       = "/api/v1"
	RunsEndpoint      = "/api/v1/runs"
	SummaryEndpoint   = "/api/v1/summary"
	DatamartsEndpoint = "/api/v1/datamarts"
	HealthEndpoint    = "/healthz"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
