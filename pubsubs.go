package bpfsverify

import (
	"context"
	"errors"

	"github.com/bpfs/dep2p"
	"github.com/bpfs/dep2p/pubsub"
	"github.com/bpfs/dep2p/streams"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

// 订阅
const (
	// 广播待验证的交易
	PubsubVerifyTxChannel = "pubsub:bpfsverify/tx/1.0.0"
)

// Broadcaster 是按主题广播的网络订阅，*pubsub.DeP2PPubSub 满足该接口
type Broadcaster interface {
	BroadcastWithTopic(topic string, data []byte) error
}

type RegisterPubsubProtocolInput struct {
	fx.In
	Ctx       context.Context     // 全局上下文
	Opt       *Options            // 选项配置
	P2P       *dep2p.DeP2P        // 网络主机
	PubSub    *pubsub.DeP2PPubSub // 网络订阅
	Validator *Validator          // 交易处理服务
}

// RegisterPubsubProtocol 注册订阅，网络未启用时不做任何操作
func RegisterPubsubProtocol(lc fx.Lifecycle, input RegisterPubsubProtocolInput) {
	if input.P2P == nil || input.PubSub == nil {
		logrus.Info("网络未启用，跳过交易广播订阅")
		return
	}

	// 接收广播的交易
	// 发送：所有节点
	// 接收：所有节点
	if err := input.PubSub.SubscribeWithTopic(input.Opt.RelayTopic, func(request *streams.RequestMessage) {
		HandleRelayTx(input.Ctx, input.Validator, request)
	}, true); err != nil {
		logrus.Errorf("订阅交易广播失败：%v \n", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return nil
		},
	})
}

// SendTx 将交易广播到网络
func SendTx(b Broadcaster, sender, topic string, tx *wire.Transaction) error {
	// 请求消息
	srm := &streams.RequestMessage{
		Payload: tx.Bytes(),
		Message: &streams.Message{
			Sender: sender, // 发送方ID
		},
	}

	// 序列化
	requestBytes, err := srm.Marshal()
	if err != nil {
		logrus.Errorf("[SendTx] 编码失败:\t%v", err)
		return err
	}

	if err := b.BroadcastWithTopic(topic, requestBytes); err != nil {
		logrus.Errorf("[SendTx] 发送失败:\t%v", err)
		return err
	}
	return nil
}

// RelayTx 使用本地主机身份广播交易
func RelayTx(p2p *dep2p.DeP2P, ps *pubsub.DeP2PPubSub, topic string, tx *wire.Transaction) error {
	return SendTx(ps, p2p.Host().ID().String(), topic, tx)
}

// HandleRelayTx 处理接收到的交易广播
func HandleRelayTx(ctx context.Context, v *Validator, request *streams.RequestMessage) {
	tx, err := wire.FromBytes(request.Payload)
	if err != nil {
		logrus.Errorf("[HandleRelayTx] 解码失败:\t%v", err)
		return
	}

	sender := ""
	if request.Message != nil {
		sender = request.Message.Sender
	}

	fee, err := v.ProcessTransaction(ctx, tx)
	switch {
	case err == nil:
		logrus.Infof("[HandleRelayTx] 接受交易 %s 来自 %s，手续费 %s", tx.Hash(), sender, wire.FormatBigValue(fee))
	case errors.Is(err, ErrAlreadyKnown):
		logrus.Tracef("[HandleRelayTx] 交易 %s 已存在", tx.Hash())
	default:
		logrus.Debugf("[HandleRelayTx] 拒绝交易 %s 来自 %s:\t%v", tx.Hash(), sender, err)
	}
}
