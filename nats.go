package bpfsverify

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
)

// Publisher 是消息发布端，*nats.Conn 满足该接口
type Publisher interface {
	Publish(subject string, data []byte) error
}

// TxEvent 是转发到消息系统的交易事件
type TxEvent struct {
	Type      string `json:"type"`
	Hash      string `json:"hash"`
	Raw       string `json:"raw"`
	Timestamp int64  `json:"timestamp"`
}

// NatsBridge 把进程内的 input-added / input-persisted 事件发布到消息系统
type NatsBridge struct {
	pub           Publisher
	subjectPrefix string
}

// NewNatsBridge 返回发布到 "<subjectPrefix>.<事件类型>" 的桥接器
func NewNatsBridge(pub Publisher, subjectPrefix string) *NatsBridge {
	return &NatsBridge{pub: pub, subjectPrefix: subjectPrefix}
}

// Attach 将桥接器挂到事件分发器上
func (b *NatsBridge) Attach(n *Notifier) {
	n.OnEmit(func(event string, tx *wire.Transaction) {
		if err := b.Publish(event, tx); err != nil {
			logrus.Errorf("[NatsBridge] 发布 %s 失败:\t%v", event, err)
		}
	})
}

// Publish 发布一个事件，event 的形式为 "<类型>:<哈希>"
func (b *NatsBridge) Publish(event string, tx *wire.Transaction) error {
	kind := event
	if i := strings.IndexByte(event, ':'); i >= 0 {
		kind = event[:i]
	}

	data, err := json.Marshal(TxEvent{
		Type:      kind,
		Hash:      tx.Hash().String(),
		Raw:       hex.EncodeToString(tx.Bytes()),
		Timestamp: time.Now().UTC().Unix(),
	})
	if err != nil {
		return err
	}
	return b.pub.Publish(b.subjectPrefix+"."+kind, data)
}

// ConnectNats 连接消息服务器，断线后无限重连
func ConnectNats(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectHandler(func(nc *nats.Conn) {
			logrus.Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Infof("Reconnected to NATS: %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logrus.Info("NATS connection closed!")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, natsErr error) {
			logrus.Errorf("NATS Error: %v", natsErr)
		}),
	}
	return nats.Connect(url, opts...)
}
