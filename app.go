package bpfsverify

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bpfs/dep2p"
	"github.com/bpfs/dep2p/pubsub"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

// Node 提供了与验证节点交互所需的各种函数
type Node struct {
	ctx       context.Context     // 全局上下文
	opt       *Options            // 选项配置
	p2p       *dep2p.DeP2P        // 网络主机，可以为 nil
	pubsub    *pubsub.DeP2PPubSub // 网络订阅，可以为 nil
	db        *SqliteDB           // 业务数据库
	events    *Notifier           // 事件分发器
	history   *History            // 持久化历史
	pool      *MemoryPool         // 内存池
	validator *Validator          // 交易处理服务
	affected  *AffectedIndex      // 受影响身份索引

	relay func(tx *wire.Transaction) error // 广播已接受的交易，网络未启用时为 nil
	app   *fx.App
}

// Open 返回一个新的验证节点。p2p 和 pubsub 为 nil 时不启用网络广播。
func Open(ctx context.Context, opt *Options, p2p *dep2p.DeP2P, pubsub *pubsub.DeP2PPubSub) (*Node, error) {
	// 1. 检查并设置选项
	if err := opt.CheckAndSetOptions(); err != nil {
		return nil, err
	}
	// 2. 日志
	if err := SetLog(opt.LogDir, opt.InstanceId, opt.LogLevel); err != nil {
		return nil, err
	}
	// 3. 本地数据库
	db, err := NewSqliteDB(opt.businessPath(), DbFile)
	if err != nil {
		return nil, err
	}

	n := &Node{
		ctx:    ctx,
		opt:    opt,
		p2p:    p2p,
		pubsub: pubsub,
		db:     db,
		events: NewNotifier(),
	}
	if p2p != nil && pubsub != nil {
		n.relay = func(tx *wire.Transaction) error {
			return RelayTx(p2p, pubsub, opt.RelayTopic, tx)
		}
	}

	// fx 配置项
	opts := []fx.Option{
		fx.NopLogger,
		n.globalInit(),
		fx.Provide(
			NewMemoryPool,       // 新的内存池
			NewHistory,          // 持久化历史
			NewAffected,         // 受影响身份索引
			NewValidatorService, // 交易处理服务
		),
		fx.Invoke(
			RegisterPubsubProtocol, // 注册订阅
			StartEventBridge,       // 转发事件
			StartMetrics,           // 指标服务
		),
		fx.Populate(
			&n.history,
			&n.pool,
			&n.affected,
			&n.validator,
		),
	}
	n.app = fx.New(opts...)
	if err := n.app.Err(); err != nil {
		db.Close()
		return nil, err
	}

	// 启动所有长时间运行的 goroutine
	if err := n.app.Start(ctx); err != nil {
		db.Close()
		return nil, err
	}
	opt.IsOpen = true
	return n, nil
}

// Close 停止节点并关闭数据库
func (n *Node) Close() error {
	defer func() { n.opt.IsOpen = false }()

	if err := n.app.Stop(context.Background()); err != nil {
		logrus.Errorf("[Close] 停止失败:\t%v", err)
	}
	return n.db.Close()
}

// Submit 处理本地提交的交易，接受后广播给其他节点。广播失败只记录日志。
func (n *Node) Submit(ctx context.Context, tx *wire.Transaction) (*big.Int, error) {
	fee, err := n.validator.ProcessTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if n.relay != nil {
		if err := n.relay(tx); err != nil {
			logrus.Warnf("[Submit] 广播交易 %s 失败:\t%v", tx.Hash(), err)
		}
	}
	return fee, nil
}

// Validator 返回交易处理服务
func (n *Node) Validator() *Validator { return n.validator }

// Pool 返回内存池
func (n *Node) Pool() *MemoryPool { return n.pool }

// History 返回持久化历史
func (n *Node) History() *History { return n.history }

// Events 返回事件分发器
func (n *Node) Events() *Notifier { return n.events }

// Affected 返回受影响身份索引
func (n *Node) Affected() *AffectedIndex { return n.affected }

// 全局初始化
func (n *Node) globalInit() fx.Option {
	return fx.Provide(
		// 获取上下文
		func(lc fx.Lifecycle) context.Context {
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					return nil
				},
			})
			return n.ctx
		},
		func() *Options {
			return n.opt
		},
		func() *dep2p.DeP2P {
			return n.p2p
		},
		func() *pubsub.DeP2PPubSub {
			return n.pubsub
		},
		func() *SqliteDB {
			return n.db
		},
		func() *Notifier {
			return n.events
		},
	)
}

type NewHistoryInput struct {
	fx.In

	Opt    *Options  // 选项配置
	Events *Notifier // 事件分发器
}

type NewHistoryOutput struct {
	fx.Out
	History *History // 持久化历史
}

// NewHistory 打开持久化历史，节点停止时关闭
func NewHistory(lc fx.Lifecycle, input NewHistoryInput) (out NewHistoryOutput, err error) {
	history, err := OpenHistory(input.Opt.historyPath(), input.Events)
	if err != nil {
		logrus.Errorf("[NewHistory] 打开失败:\t%v", err)
		return out, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return history.Close()
		},
	})
	out.History = history
	return out, nil
}

type NewAffectedOutput struct {
	fx.Out
	Affected *AffectedIndex // 受影响身份索引
}

// NewAffected 在业务数据库上建立受影响身份索引
func NewAffected(db *SqliteDB) (out NewAffectedOutput, err error) {
	out.Affected, err = NewAffectedIndex(db)
	return out, err
}

type NewValidatorInput struct {
	fx.In

	Opt      *Options
	Pool     *MemoryPool
	History  *History
	Events   *Notifier
	Affected *AffectedIndex
}

type NewValidatorOutput struct {
	fx.Out
	Validator *Validator // 交易处理服务
}

// NewValidatorService 构建交易处理服务
func NewValidatorService(input NewValidatorInput) (out NewValidatorOutput, err error) {
	out.Validator = NewValidator(input.Opt, input.Pool, input.History, input.Events, input.Affected)
	return out, nil
}

type StartEventBridgeInput struct {
	fx.In

	Opt    *Options
	Events *Notifier
}

// StartEventBridge 在配置了消息服务器时转发交易事件
func StartEventBridge(lc fx.Lifecycle, input StartEventBridgeInput) error {
	if input.Opt.NatsURL == "" {
		return nil
	}

	nc, err := ConnectNats(input.Opt.NatsURL)
	if err != nil {
		return fmt.Errorf("连接消息服务器失败: %w", err)
	}
	NewNatsBridge(nc, input.Opt.NatsSubject).Attach(input.Events)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return nc.Drain()
		},
	})
	return nil
}

// StartMetrics 在配置了地址时提供 /metrics
func StartMetrics(lc fx.Lifecycle, opt *Options) {
	if opt.MetricsAddr == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartMetricsServer(ctx, opt.MetricsAddr)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}
