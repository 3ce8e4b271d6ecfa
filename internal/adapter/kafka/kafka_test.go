package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.MeasurementRecord{
		Timestamp:     now,
		ParameterCode: "TEMP",
		Namespace:     domain.NamespaceCF,
		Value:         13.2,
		Unit:          "degC",
		LocationID:    7,
		SourceID:      "mooring-01",
		QualityFlag:   domain.FlagGood,
		IngestedAt:    now.Add(time.Hour),
	}

	msg, err := serializeToMessage(rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("mooring-01"), msg.Key)
	assert.Contains(t, string(msg.Value), `"parameter_code":"TEMP"`)
	assert.Contains(t, string(msg.Value), `"quality_flag":"good"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "parameter_code", msg.Headers[0].Key)
	assert.Equal(t, []byte("TEMP"), msg.Headers[0].Value)
	assert.Equal(t, "ingested_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Add(time.Hour).Format(time.RFC3339)), msg.Headers[1].Value)
}
