package telemetry

import (
	"testing"

	"github.com/squadracorsepolito/acmedash/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func Test_Init_disabled(t *testing.T) {
	assert := assert.New(t)

	shutdown, err := Init(t.Context(), nil)
	require.NoError(t, err)
	assert.NoError(shutdown(t.Context()))
}

func Test_Telemetry_counterName(t *testing.T) {
	assert := assert.New(t)

	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	tel := internal.NewTelemetry("bus", "drive")
	counter := tel.NewCounter("rx_frames")
	counter.Add(t.Context(), 3)
	counter.Add(t.Context(), 2)

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(t.Context(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	scope := rm.ScopeMetrics[0]
	assert.Equal(internal.ScopeName, scope.Scope.Name)
	require.Len(t, scope.Metrics, 1)
	assert.Equal("bus_drive_rx_frames", scope.Metrics[0].Name)

	sum, ok := scope.Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(int64(5), sum.DataPoints[0].Value)
}
