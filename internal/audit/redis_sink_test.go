package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStreamSinkWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisStreamSink(client, "audit:events", 1000)

	principal := uuid.New()
	event := NewEvent(EventAccountLocked,
		WithPrincipal(principal),
		WithIP("203.0.113.9"),
		WithSeverity(SeverityWarning),
		WithTags(TagSOC2, TagSecurity),
		WithRiskScore(50),
	)
	require.NoError(t, sink.Write(context.Background(), event))

	entries, err := client.XRange(context.Background(), "audit:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, string(EventAccountLocked), entries[0].Values["event_type"])

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &decoded))
	require.Equal(t, event.ID, decoded.ID)
	require.Equal(t, principal, *decoded.PrincipalID)
	require.Equal(t, 50, decoded.RiskScore)
	require.Equal(t, []string{TagSOC2, TagSecurity}, decoded.ComplianceTags)
}

func TestRedisStreamSinkDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisStreamSink(client, "", 0)

	require.NoError(t, sink.Write(context.Background(), NewEvent(EventLoginAttempt)))

	length, err := client.XLen(context.Background(), "audit:events").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), length)
}
