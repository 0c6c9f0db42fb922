package audit

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDecisionFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.LogDecision(Decision{
		DecisionID:     "01JX000000000000000000TEST",
		RequestID:      "req-1",
		SubjectID:      "jdoe",
		SubjectCountry: "GBR",
		ResourceID:     "doc-9",
		OwnerInstance:  "USA",
		LocalInstance:  "GBR",
		Action:         "read",
		Allow:          true,
		Reason:         "local allow; remote allow",
		Obligations:    []string{"audit:cross-instance-access"},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "audit", entry["component"])
	assert.Equal(t, "jdoe", entry["subject_id"])
	assert.Equal(t, true, entry["allow"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestLogDecisionDenyIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.LogDecision(Decision{DecisionID: "d1", Allow: false, Reason: "no bilateral trust"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
}

func TestLogCircuitEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.LogCircuitEvent("GBR", "closed", "open", "failure_threshold", time.Now())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GBR", entry["peer"])
	assert.Equal(t, "open", entry["to"])
	assert.Equal(t, "failure_threshold", entry["reason"])
}
