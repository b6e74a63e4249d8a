// Package observability 提供客户端的 Prometheus 指标与 OpenTelemetry tracer
//
// 指标在包初始化时注册到 prometheus.DefaultRegisterer，
// 宿主进程只需暴露默认 registry 即可采集。
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// LLMBuckets 适用于对话补全延迟的直方图分桶（100ms 到 120s）
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// 请求模式与结果标签值
const (
	ModeBlocking  = "blocking"
	ModeStreaming = "streaming"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// TokenRefreshesTotal 令牌刷新次数（按结果）
	TokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigachat_token_refreshes_total",
			Help: "Token refreshes",
		},
		[]string{"result"},
	)

	// RequestsTotal 对话请求次数（按模式与错误类型，成功时 kind 为 "none"）
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigachat_requests_total",
			Help: "Chat requests",
		},
		[]string{"mode", "kind"},
	)

	// RequestDuration 对话请求耗时（秒）
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigachat_request_duration_seconds",
			Help:    "Chat request duration",
			Buckets: LLMBuckets,
		},
		[]string{"mode"},
	)

	// StreamFragmentsTotal 流式响应中累积的文本片段数
	StreamFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gigachat_stream_fragments_total",
			Help: "Streamed delta fragments",
		},
	)

	// ActiveStreams 进行中的流式请求数
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gigachat_streams_active",
			Help: "Active streaming requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TokenRefreshesTotal,
		RequestsTotal,
		RequestDuration,
		StreamFragmentsTotal,
		ActiveStreams,
	)
}

// TracerName 本库使用的 tracer 名称
const TracerName = "github.com/lwmacct/251215-go-pkg-gigachat"

// Tracer 返回全局 TracerProvider 上的 tracer
//
// 未配置 SDK 时为 no-op。
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
