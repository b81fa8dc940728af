package bpfsverify

import (
	"context"
	"errors"
	"testing"

	"github.com/bpfs/dep2p/streams"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcast struct {
	topic string
	data  []byte
}

type fakeBroadcaster struct {
	sent []broadcast
	err  error
}

func (b *fakeBroadcaster) BroadcastWithTopic(topic string, data []byte) error {
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, broadcast{topic, data})
	return nil
}

func TestSendTx(t *testing.T) {
	b := &fakeBroadcaster{}
	tx := fundingTx(t, testKey(t, 0), 100)

	require.NoError(t, SendTx(b, "peer-1", PubsubVerifyTxChannel, tx))
	require.Len(t, b.sent, 1)
	assert.Equal(t, PubsubVerifyTxChannel, b.sent[0].topic)
	assert.NotEmpty(t, b.sent[0].data)

	boom := errors.New("not subscribed")
	assert.ErrorIs(t, SendTx(&fakeBroadcaster{err: boom}, "peer-1", PubsubVerifyTxChannel, tx), boom)
}

func TestHandleRelayTx(t *testing.T) {
	v := newValidatorFixture(t, nil)
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	saveAll(t, v.history, funding)
	spend := spendTx(t, key, funding, 0, 4000)

	HandleRelayTx(context.Background(), v.Validator, &streams.RequestMessage{
		Payload: spend.Bytes(),
		Message: &streams.Message{Sender: "peer-1"},
	})
	assert.True(t, v.pool.Has(spend.Hash()))

	// 重复的广播被忽略
	HandleRelayTx(context.Background(), v.Validator, &streams.RequestMessage{Payload: spend.Bytes()})
	pending, _ := v.pool.Count()
	assert.Equal(t, 1, pending)

	// 无法解码的负载
	HandleRelayTx(context.Background(), v.Validator, &streams.RequestMessage{Payload: []byte{0x01}})
	pending, _ = v.pool.Count()
	assert.Equal(t, 1, pending)
}
