//go:build integration

package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"escrowops/internal/audit/audittest"
	"escrowops/internal/audit/models"
	auditstore "escrowops/internal/audit/store"
	"escrowops/internal/platform/config"
	"escrowops/internal/platform/kafka"
	"escrowops/pkg/testutil/containers"
)

func TestForwardToRedpanda(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: []string{rp.Broker}, AuditTopic: "escrowops.audit.test", Partitions: 1}
	producer, err := kafka.NewProducer(ctx, cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.EnsureTopic(ctx, cfg.Partitions))

	svc, _ := audittest.NewLog()
	for _, action := range []string{models.ActionGroupReset, models.ActionFeeUpdate} {
		_, err := svc.Append(ctx, models.Entry{ActorID: "owner-1", Action: action, Outcome: models.OutcomeSuccess})
		require.NoError(t, err)
	}

	n, err := New(svc, producer, auditstore.NewInMemoryOffsets(), WithLogger(quiet())).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(cfg.AuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var keys []string
	for len(keys) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, fetches.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			keys = append(keys, string(r.Key))
		})
	}
	assert.Equal(t, []string{"1", "2"}, keys)
}
