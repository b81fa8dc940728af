package bpfsverify

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Options 是验证节点的选项配置
type Options struct {
	IsOpen bool `yaml:"-"` // 节点实例是否已打开

	InstanceId string `yaml:"instance_id"` // 实例标识符，用于区分日志文件

	DataDir  string `yaml:"data_dir"`  // 数据目录，为空时使用内存数据库
	LogDir   string `yaml:"log_dir"`   // 日志目录，为空时不写日志文件
	LogLevel string `yaml:"log_level"` // 日志级别

	// ResolveTimeout 是等待缺失先前交易的最长时间
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
	// WaitForInputs 为 true 时，解析在待处理池和历史中都找不到的先前交易时等待实时事件
	WaitForInputs bool `yaml:"wait_for_inputs"`
	// AllowDisabledOpcodes 允许执行被禁用的字符串、位运算和扩展算术操作码
	AllowDisabledOpcodes bool `yaml:"allow_disabled_opcodes"`
	// RequireStandard 为 true 时拒绝非标准交易
	RequireStandard bool `yaml:"require_standard"`

	NatsURL     string `yaml:"nats_url"`     // 为空时不转发事件
	NatsSubject string `yaml:"nats_subject"` // 事件主题前缀

	MetricsAddr string `yaml:"metrics_addr"` // 为空时不提供 /metrics
	RelayTopic  string `yaml:"relay_topic"`  // 交易广播主题
}

// DefaultOptions 设置一个推荐选项列表
func DefaultOptions() *Options {
	return &Options{
		LogLevel:       "info",
		ResolveTimeout: DefaultResolveTimeout,
		WaitForInputs:  true,
		NatsSubject:    "bpfsverify.tx",
		RelayTopic:     PubsubVerifyTxChannel,
	}
}

// LoadOptions 从 YAML 文件读取选项，文件中未出现的字段保留默认值
func LoadOptions(fs afero.Fs, path string) (*Options, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	opt := DefaultOptions()
	if err := yaml.Unmarshal(data, opt); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return opt, nil
}

// BuildInstanceId 设置实例ID，未指定时使用主网卡的 MAC 地址
func (opt *Options) BuildInstanceId(instanceId ...string) {
	if opt.IsOpen {
		return
	}

	if len(instanceId) > 0 && instanceId[0] != "" {
		opt.InstanceId = instanceId[0]
		return
	}
	mac, err := primaryMACAddress()
	if err != nil {
		// 生成随机字符串作为替代值
		mac, _ = generateRandomString(12)
	}
	opt.InstanceId = strings.ReplaceAll(mac, ":", "")
}

// BuildDataDir 设置数据目录，必须是绝对路径
func (opt *Options) BuildDataDir(path string) {
	if opt.IsOpen || path == "" || !filepath.IsAbs(path) {
		return
	}
	opt.DataDir = path
}

// CheckAndSetOptions 检查并设置选项
func (opt *Options) CheckAndSetOptions() error {
	if opt.IsOpen {
		return fmt.Errorf("'%s' 验证节点实例已打开", opt.InstanceId)
	}
	if opt.ResolveTimeout <= 0 {
		opt.ResolveTimeout = DefaultResolveTimeout
	}
	if opt.LogLevel == "" {
		opt.LogLevel = "info"
	}
	if opt.RelayTopic == "" {
		opt.RelayTopic = PubsubVerifyTxChannel
	}
	if opt.NatsURL != "" && opt.NatsSubject == "" {
		return fmt.Errorf("nats_subject 不能为空")
	}
	return nil
}

// historyPath 返回历史数据库目录，内存模式下为空
func (opt *Options) historyPath() string {
	if opt.DataDir == "" {
		return ""
	}
	return filepath.Join(opt.DataDir, "history")
}

// businessPath 返回业务数据库目录，内存模式下为空
func (opt *Options) businessPath() string {
	if opt.DataDir == "" {
		return ""
	}
	return filepath.Join(opt.DataDir, "business")
}

// primaryMACAddress 返回权重最高的网卡的 MAC 地址
func primaryMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	best, bestWeight := "", 0
	for _, iface := range interfaces {
		if iface.HardwareAddr == nil || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		weight := 0
		// 非虚拟接口
		if !strings.Contains(iface.Name, "vmnet") && !strings.Contains(iface.Name, "vboxnet") {
			weight += 10
		}
		if iface.Flags&net.FlagUp != 0 {
			weight += 10
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
					weight += 10
					break
				}
			}
		}

		if weight > bestWeight {
			best, bestWeight = iface.HardwareAddr.String(), weight
		}
	}

	if best == "" {
		return "", fmt.Errorf("no MAC address found")
	}
	return best, nil
}
