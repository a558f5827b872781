package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionEvent(t *testing.T) {
	event := NewSessionEvent(EventSessionGraded, SessionGradedEvent{
		SessionRef: SessionRef{SessionID: "s-1", AssessmentID: "a-1", LearnerID: "l-1", Attempt: 2},
		Score:      5,
		Percentage: 50,
		Passed:     true,
	})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "assessment-session-engine", event.Source)
	assert.Equal(t, "1.0", event.Version)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "s-1", event.PartitionKey())
}

func TestNewMessage(t *testing.T) {
	event := NewSessionEvent(EventSessionStarted, SessionStartedEvent{
		SessionRef:    SessionRef{SessionID: "s-1", AssessmentID: "a-1", LearnerID: "l-1", Attempt: 1},
		QuestionCount: 3,
	})

	msg, err := NewMessage(event)
	require.NoError(t, err)

	assert.Equal(t, event.ID, msg.UUID)
	assert.Equal(t, "session.started", msg.Metadata.Get("event_type"))
	assert.Equal(t, "s-1", msg.Metadata.Get("session_id"))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	data := decoded["data"].(map[string]interface{})
	assert.Equal(t, "s-1", data["session_id"])
	assert.Equal(t, float64(3), data["question_count"])
}

func TestPartitionKeyFallsBackToEventID(t *testing.T) {
	event := NewSessionEvent(EventSessionStarted, map[string]string{"x": "y"})
	assert.Equal(t, event.ID, event.PartitionKey())
}

func TestMockEventPublisher(t *testing.T) {
	publisher := NewMockEventPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, publisher.PublishSessionEvent(context.Background(), NewSessionEvent(EventSessionExpired, SessionExpiredEvent{})))
	require.NoError(t, publisher.PublishSessionEvent(context.Background(), NewSessionEvent(EventSessionSubmitted, SessionSubmittedEvent{AutoSubmit: true})))

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 2)
	assert.Equal(t, EventSessionExpired, published[0].Type)
	assert.Equal(t, EventSessionSubmitted, published[1].Type)

	publisher.ClearEvents()
	assert.Empty(t, publisher.GetPublishedEvents())
	assert.NoError(t, publisher.Close())
}
