package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePayloadRoundTrip(t *testing.T) {
	msg, err := NewMessage("msg-1", TypeSegmentGen, "story-1", "seg-1", &SegmentGenMessage{
		SegmentID:  "seg-1",
		StoryID:    "story-1",
		UserPrompt: "what happens next",
	})
	require.NoError(t, err)

	var payload SegmentGenMessage
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, "seg-1", payload.SegmentID)
	assert.Equal(t, "what happens next", payload.UserPrompt)
}

func TestDLQStreamName(t *testing.T) {
	assert.Equal(t, "dlq:stream:segment:gen", StreamSegmentGen.DLQStream())
}

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, cfg.CalculateBackoff(3))
	// 封顶
	assert.Equal(t, 10*time.Second, cfg.CalculateBackoff(10))
}
