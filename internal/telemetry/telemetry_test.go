package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/kbflow/kbflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// saveAndRestoreGlobalProviders 快照全局 OTel Provider 并在测试结束时恢复，
// 避免测试间泄漏全局状态。
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInitDisabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
}

func TestInitEnabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	// gRPC 导出器惰性连接，端点不可达也能完成初始化
	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "kbflow-test",
		SampleRate:   0.5,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotNil(t, p.tp)
	assert.NotNil(t, p.mp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// 端点不可达时 Shutdown 可能返回导出错误，这里只要求不 panic
	_ = p.Shutdown(ctx)
}

func TestShutdownNoop(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, (&Providers{}).Shutdown(context.Background()))
}
