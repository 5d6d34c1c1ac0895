package broadcaster

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lobsim/infra/outbox"
)

func seed(t *testing.T, n int) *outbox.Outbox {
	t.Helper()
	ob, err := outbox.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ob.Close() })

	items := make([]outbox.Item, n)
	for i := range items {
		items[i] = outbox.Item{Kind: "trade", Seq: uint64(i + 1), Payload: []byte(`{"qty":1}`)}
	}
	require.NoError(t, ob.PutBatch("run", items))
	return ob
}

func count(t *testing.T, ob *outbox.Outbox, s outbox.State) int {
	t.Helper()
	n := 0
	require.NoError(t, ob.ScanByState(s, func(outbox.Entry) error { n++; return nil }))
	return n
}

func TestDrainPublishesAndAcks(t *testing.T) {
	ob := seed(t, 3)
	producer := mocks.NewSyncProducer(t, SaramaConfig())
	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
			if m.Topic != "lobsim.runs" {
				return errors.Newf("topic %s", m.Topic)
			}
			return nil
		})
	}

	b := New(ob, WithProducer(producer, "lobsim.runs"), Config{}, zaptest.NewLogger(t))
	acked, err := b.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, acked)
	assert.Equal(t, 3, count(t, ob, outbox.StateAcked))
	assert.Zero(t, count(t, ob, outbox.StateNew))

	acked, err = b.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, acked, "acked entries are not resent")
	require.NoError(t, b.Close())
}

func TestDrainRetriesFailures(t *testing.T) {
	ob := seed(t, 2)
	producer := mocks.NewSyncProducer(t, SaramaConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	b := New(ob, WithProducer(producer, "t"), Config{MaxRetries: 3}, zaptest.NewLogger(t))
	acked, err := b.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, 1, count(t, ob, outbox.StateNew))

	acked, err = b.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, 2, count(t, ob, outbox.StateAcked))
	require.NoError(t, b.Close())
}

type stubPublisher struct {
	keys []string
}

func (s *stubPublisher) Publish(_ context.Context, key, _ []byte) error {
	s.keys = append(s.keys, string(key))
	return nil
}

func (s *stubPublisher) Close() error { return nil }

func TestDrainDeletesAcked(t *testing.T) {
	ob := seed(t, 2)
	pub := &stubPublisher{}
	b := New(ob, pub, Config{DeleteAcked: true}, nil)

	acked, err := b.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, acked)
	assert.Equal(t, []string{outbox.Key("run", "trade", 1), outbox.Key("run", "trade", 2)}, pub.keys)
	assert.Zero(t, count(t, ob, outbox.StateAcked))
}
