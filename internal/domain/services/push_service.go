package services

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/pkg/logger"
)

// 主题常量
const (
	// TopicAdminDevices 管理端订阅的机群事件主题
	TopicAdminDevices = "admin:devices"

	// TopicDevicePresence 设备上下线announce主题
	TopicDevicePresence = "devices/presence"
)

// 机群事件类型，发布到 admin:devices 主题
const (
	EventNewRegistration = "device:new-registration"
	EventApproved        = "device:approved"
	EventRejected        = "device:rejected"
	EventStatusAlert     = "device:status-alert"
)

// 下发给设备的消息类型，发布到 device:<uuid> 主题
const (
	MessageTypeApproved     = "approved"
	MessageTypeRejected     = "rejected"
	MessageTypeConfigUpdate = "config_update"
	MessageTypeReboot       = "reboot"
	MessageTypeGuestMessage = "guest_message"
	MessageTypeDeleted      = "deleted"
)

// DeviceTopic 返回指定设备的专属推送主题
func DeviceTopic(deviceUUID string) string {
	return "device:" + deviceUUID
}

// DeliveryResult 单次推送的投递结果
type DeliveryResult string

const (
	// DeliveryDelivered 已投递到设备的实时通道
	DeliveryDelivered DeliveryResult = "delivered"
	// DeliveryNotConnected 设备当前没有实时连接，消息被丢弃
	DeliveryNotConnected DeliveryResult = "device_not_connected"
	// DeliveryFailed 通道发布失败，消息被丢弃
	DeliveryFailed DeliveryResult = "failed"
)

// PushEnvelope 实时通道上的消息封包
type PushEnvelope struct {
	MessageID string                 `json:"message_id"`
	Type      string                 `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// presenceMessage 设备在presence主题上的announce消息
type presenceMessage struct {
	UUID  string `json:"uuid"`
	Event string `json:"event"` // "connect" 或 "disconnect"
}

// InterfacePublisher 实时通道的发布接口。
// 作为显式依赖注入到需要发布事件的组件中。
type InterfacePublisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// PresenceHandler 接收设备上下线通知
type PresenceHandler interface {
	HandleDeviceConnect(deviceUUID string)
	HandleDeviceDisconnect(deviceUUID string)
}

// MQTTPublisher 基于MQTT的实时通道实现
type MQTTPublisher struct {
	Config         *config.Config
	Client         mqtt.Client
	IsConnectedVal bool
	connectedMutex sync.RWMutex
	publishMutex   sync.Mutex

	presenceHandler PresenceHandler
}

// NewMQTTPublisher 创建一个新的MQTT发布器
func NewMQTTPublisher(cfg *config.Config) *MQTTPublisher {
	p := &MQTTPublisher{
		Config: cfg,
	}
	p.setupMQTTClient()
	return p
}

// SetPresenceHandler 设置设备上下线通知的处理器，必须在Connect之前调用
func (p *MQTTPublisher) SetPresenceHandler(handler PresenceHandler) {
	p.presenceHandler = handler
}

// setupMQTTClient 设置MQTT客户端
func (p *MQTTPublisher) setupMQTTClient() {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.Config.MQTTBrokerURL)
	// 使用唯一的客户端ID，避免同一服务多实例冲突
	opts.SetClientID(fmt.Sprintf("%s-%s-%d", p.Config.MQTTClientID, uuid.New().String()[:8], time.Now().UnixNano()))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Second * 30)
	opts.SetKeepAlive(time.Second * 60)
	opts.SetPingTimeout(time.Second * 10)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		logger.Warning("[MQTT] 收到未处理的消息: topic=%s", msg.Topic())
	})

	// 添加用户名和密码
	if p.Config.MQTTUsername != "" {
		opts.SetUsername(p.Config.MQTTUsername)
		opts.SetPassword(p.Config.MQTTPassword)
	}

	// 添加TLS配置，支持SSL连接
	if strings.HasPrefix(p.Config.MQTTBrokerURL, "ssl://") || strings.HasPrefix(p.Config.MQTTBrokerURL, "tls://") || p.Config.MQTTSSLEnabled {
		logger.Info("[MQTT] 使用TLS连接")
		opts.SetTLSConfig(mqttTLSConfig(p.Config.MQTTCACertPath))
	}

	// 设置连接丢失回调
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warning("[MQTT] 连接丢失: %v", err)
		p.connectedMutex.Lock()
		p.IsConnectedVal = false
		p.connectedMutex.Unlock()
	})

	// 设置连接建立回调
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("[MQTT] 成功连接到 %s", p.Config.MQTTBrokerURL)
		p.connectedMutex.Lock()
		p.IsConnectedVal = true
		p.connectedMutex.Unlock()

		// 订阅presence主题
		if err := p.subscribePresence(); err != nil {
			logger.Error("[MQTT] 订阅presence主题失败: %v", err)
		}
	})

	// 设置重连回调
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Info("[MQTT] 正在尝试重连...")
	})

	p.Client = mqtt.NewClient(opts)
}

// mqttTLSConfig 构造MQTT连接的TLS配置。
// 配置了CA证书时校验broker证书，未配置或证书不可用时退回跳过验证。
func mqttTLSConfig(caCertPath string) *tls.Config {
	if caCertPath == "" {
		return &tls.Config{InsecureSkipVerify: true}
	}

	pemData, err := os.ReadFile(caCertPath)
	if err != nil {
		logger.Warning("[MQTT] 读取CA证书失败，退回跳过证书验证: %v", err)
		return &tls.Config{InsecureSkipVerify: true}
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		logger.Warning("[MQTT] CA证书解析失败，退回跳过证书验证: %s", caCertPath)
		return &tls.Config{InsecureSkipVerify: true}
	}
	return &tls.Config{RootCAs: pool}
}

// subscribePresence 订阅设备上下线announce主题
func (p *MQTTPublisher) subscribePresence() error {
	qos := byte(p.Config.MQTTQoS)
	token := p.Client.Subscribe(TopicDevicePresence, qos, p.handlePresence)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("订阅主题失败 [%s]: %v", TopicDevicePresence, token.Error())
	}
	logger.Info("[MQTT] 已订阅主题: %s", TopicDevicePresence)
	return nil
}

// handlePresence 处理设备上下线消息。
// 设备连接后发布 {"uuid":..., "event":"connect"}；
// disconnect消息由设备主动发布，或由broker通过遗嘱消息(LWT)代发。
func (p *MQTTPublisher) handlePresence(client mqtt.Client, msg mqtt.Message) {
	var presence presenceMessage
	if err := json.Unmarshal(msg.Payload(), &presence); err != nil {
		logger.Warning("[MQTT] 无法解析presence消息: %v", err)
		return
	}
	if presence.UUID == "" || p.presenceHandler == nil {
		return
	}

	switch presence.Event {
	case "connect":
		p.presenceHandler.HandleDeviceConnect(presence.UUID)
	case "disconnect":
		p.presenceHandler.HandleDeviceDisconnect(presence.UUID)
	default:
		logger.Warning("[MQTT] 未知的presence事件: %s", presence.Event)
	}
}

// Connect 连接到MQTT服务器，带有重试机制
func (p *MQTTPublisher) Connect() error {
	logger.Info("[MQTT] 正在连接到 %s...", p.Config.MQTTBrokerURL)

	// 加锁，确保同一时间只有一个连接尝试
	p.publishMutex.Lock()
	defer p.publishMutex.Unlock()

	p.connectedMutex.RLock()
	isConnected := p.IsConnectedVal && p.Client.IsConnected()
	p.connectedMutex.RUnlock()

	if isConnected {
		return nil
	}

	// 添加最大重试次数和指数退避策略
	maxRetries := 5
	var err error

	for i := 0; i < maxRetries; i++ {
		token := p.Client.Connect()
		if token.WaitTimeout(5*time.Second) && token.Error() == nil {
			p.connectedMutex.Lock()
			p.IsConnectedVal = true
			p.connectedMutex.Unlock()
			logger.Info("[MQTT] 成功连接到 %s", p.Config.MQTTBrokerURL)
			return nil
		}

		err = token.Error()
		backoffTime := time.Duration(1<<uint(i)) * time.Second // 指数退避: 1s, 2s, 4s, 8s, 16s
		logger.Warning("[MQTT] 连接尝试 %d/%d 失败: %v, 将在 %v 后重试", i+1, maxRetries, err, backoffTime)
		time.Sleep(backoffTime)
	}

	return fmt.Errorf("[MQTT] 连接失败，已尝试 %d 次: %v", maxRetries, err)
}

// Disconnect 断开与MQTT服务器的连接
func (p *MQTTPublisher) Disconnect() {
	if p.Client != nil && p.Client.IsConnected() {
		p.Client.Disconnect(250)
	}
}

// Publish 向指定主题发布消息
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	p.publishMutex.Lock()
	defer p.publishMutex.Unlock()

	if !p.Client.IsConnected() {
		return fmt.Errorf("MQTT未连接")
	}

	qos := byte(p.Config.MQTTQoS)
	token := p.Client.Publish(topic, qos, p.Config.MQTTRetained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("发布消息超时 [%s]", topic)
	}
	return token.Error()
}

// IsConnected 返回当前连接状态
func (p *MQTTPublisher) IsConnected() bool {
	p.connectedMutex.RLock()
	defer p.connectedMutex.RUnlock()
	return p.IsConnectedVal && p.Client.IsConnected()
}

// InterfacePushService 定义推送分发服务接口
type InterfacePushService interface {
	Dispatch(deviceUUID string, msgType string, payload map[string]interface{}) DeliveryResult
	NotifyAdmins(event string, payload map[string]interface{})
}

// PushService 向当前连接的设备做尽力而为的消息分发。
// at-most-once：没有队列、没有重试、不持久化未投递的消息，
// 设备重连后通过心跳和配置拉取接口自行恢复状态。
type PushService struct {
	Publisher InterfacePublisher
	Sessions  InterfaceSessionService
}

// NewPushService 创建一个新的推送分发服务
func NewPushService(publisher InterfacePublisher, sessions InterfaceSessionService) InterfacePushService {
	return &PushService{
		Publisher: publisher,
		Sessions:  sessions,
	}
}

// 1 Dispatch 向指定设备推送一条消息。
// 设备没有活跃会话时直接返回device_not_connected，不产生任何副作用。
func (s *PushService) Dispatch(deviceUUID string, msgType string, payload map[string]interface{}) DeliveryResult {
	if _, ok := s.Sessions.Get(deviceUUID); !ok {
		return DeliveryNotConnected
	}

	envelope := PushEnvelope{
		MessageID: uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("[Push] 无法序列化消息: %v", err)
		return DeliveryFailed
	}

	if err := s.Publisher.Publish(DeviceTopic(deviceUUID), data); err != nil {
		logger.Warning("[Push] 向设备 %s 推送消息失败: %v", deviceUUID, err)
		return DeliveryFailed
	}

	return DeliveryDelivered
}

// 2 NotifyAdmins 向管理端广播机群事件。
// 发布失败只记录日志，不向调用方传播错误。
func (s *PushService) NotifyAdmins(event string, payload map[string]interface{}) {
	envelope := PushEnvelope{
		MessageID: uuid.New().String(),
		Type:      event,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("[Push] 无法序列化管理端事件: %v", err)
		return
	}

	if err := s.Publisher.Publish(TopicAdminDevices, data); err != nil {
		logger.Warning("[Push] 管理端广播失败 [%s]: %v", event, err)
	}
}
