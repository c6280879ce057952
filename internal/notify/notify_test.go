package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/notify"
	"github.com/kiranshivaraju/clearops/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStream(t *testing.T) (*notify.StreamSender, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return notify.NewStreamSender(client, "clearops:notifications", 1000), client
}

func TestStreamSender_JobAssigned(t *testing.T) {
	sender, client := newStream(t)
	ctx := context.Background()

	a := notify.Assignment{
		TenantID:   uuid.New(),
		JobID:      uuid.New(),
		CrewID:     uuid.New(),
		CrewName:   "North crew",
		Address:    "1 High Street",
		DistanceKm: 2.5,
		AssignedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sender.JobAssigned(ctx, a))

	msgs, err := client.XRange(ctx, "clearops:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, notify.EventJobAssigned, values["event"])
	assert.Equal(t, a.JobID.String(), values["job_id"])

	var got notify.Assignment
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &got))
	assert.Equal(t, a, got)
}

func TestStreamSender_JobStatusChanged(t *testing.T) {
	sender, client := newStream(t)
	ctx := context.Background()

	c := notify.StatusChange{
		TenantID: uuid.New(),
		JobID:    uuid.New(),
		From:     models.JobStatusCreated,
		To:       models.JobStatusQuoteSent,
	}
	require.NoError(t, sender.JobStatusChanged(ctx, c))

	n, err := client.XLen(ctx, "clearops:notifications").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStreamSender_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	sender := notify.NewStreamSender(client, "clearops:notifications", 0)
	mr.Close()

	err := sender.JobAssigned(context.Background(), notify.Assignment{JobID: uuid.New()})
	assert.Error(t, err)
}

func TestLogSender_NeverFails(t *testing.T) {
	var s notify.Sender = notify.LogSender{}
	assert.NoError(t, s.JobAssigned(context.Background(), notify.Assignment{}))
	assert.NoError(t, s.JobStatusChanged(context.Background(), notify.StatusChange{}))
}
