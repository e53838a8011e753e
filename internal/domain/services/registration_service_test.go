package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
)

func newRegistrationFixture() (InterfaceRegistrationService, store.DeviceStore, *SessionService, *fakePublisher) {
	deviceStore := store.NewMemoryDeviceStore()
	sessions := newTestSessions()
	publisher := newFakePublisher()
	push := NewPushService(publisher, sessions)
	svc := NewRegistrationService(deviceStore, testConfig(), sessions, push)
	return svc, deviceStore, sessions, publisher
}

func TestRegisterNewDevice(t *testing.T) {
	svc, deviceStore, sessions, publisher := newRegistrationFixture()

	result, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", map[string]interface{}{"model": "STB-100"}, "1.0.0")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !result.Created || !result.RequiresApproval {
		t.Errorf("result = %+v, want created pending device", result)
	}
	if result.Status != models.DeviceStatusPending {
		t.Errorf("status = %s, want pending", result.Status)
	}

	device, err := deviceStore.FindByUUID("uuid-1")
	if err != nil {
		t.Fatalf("FindByUUID: %v", err)
	}
	if device.MACAddress != "AA:BB:CC:DD:EE:01" {
		t.Errorf("mac = %s, want normalized AA:BB:CC:DD:EE:01", device.MACAddress)
	}
	if device.LastHeartbeat == nil {
		t.Error("registration should stamp an initial heartbeat")
	}
	if device.Configuration.Settings.Volume != 50 {
		t.Error("new device should carry the default configuration")
	}

	if _, ok := sessions.Get("uuid-1"); !ok {
		t.Error("registration should open a connection session")
	}

	// 新注册要通知管理端
	if len(publisher.messagesTo(TopicAdminDevices)) != 1 {
		t.Error("new registration should broadcast to admins")
	}
}

// 同UUID重复注册是幂等重连：不新建记录、不重复通知管理端
func TestRegisterExistingUUIDIsIdempotent(t *testing.T) {
	svc, deviceStore, _, publisher := newRegistrationFixture()

	first, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", map[string]interface{}{"model": "STB-100"}, "1.0.0")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	second, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", map[string]interface{}{"firmware": "2.0"}, "1.1.0")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.Created {
		t.Error("re-registration must not create a new record")
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("device id changed on re-registration: %d -> %d", first.DeviceID, second.DeviceID)
	}

	count, _ := deviceStore.Count("")
	if count != 1 {
		t.Errorf("device count = %d, want 1", count)
	}

	// device_info合并而不是覆盖
	device, _ := deviceStore.FindByUUID("uuid-1")
	if device.DeviceInfo["model"] != "STB-100" || device.DeviceInfo["firmware"] != "2.0" {
		t.Errorf("device_info = %v, want merged keys", device.DeviceInfo)
	}
	if device.Version != "1.1.0" {
		t.Errorf("version = %s, want 1.1.0", device.Version)
	}

	if len(publisher.messagesTo(TopicAdminDevices)) != 1 {
		t.Error("re-registration must not broadcast a second admin notification")
	}
}

// 审批状态在重连时保持不变，rejected不会被自动复活
func TestRegisterDoesNotResetApprovalStatus(t *testing.T) {
	svc, deviceStore, _, _ := newRegistrationFixture()

	result, _ := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, "")
	if err := deviceStore.Updates(result.DeviceID, map[string]interface{}{
		"status": models.DeviceStatusRejected,
	}); err != nil {
		t.Fatalf("Updates: %v", err)
	}

	second, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, "")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.Status != models.DeviceStatusRejected {
		t.Errorf("status = %s, re-registration must not change rejected", second.Status)
	}
}

func TestRegisterMacConflict(t *testing.T) {
	svc, deviceStore, _, _ := newRegistrationFixture()

	if _, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Register("uuid-2", "AA-BB-CC-DD-EE-01", nil, "")
	if !errors.Is(err, ErrMacAddressConflict) {
		t.Fatalf("Register with taken MAC = %v, want ErrMacAddressConflict", err)
	}

	// 冲突注册不留下任何记录
	count, _ := deviceStore.Count("")
	if count != 1 {
		t.Errorf("device count = %d, want 1", count)
	}
}

func TestRegisterInvalidMac(t *testing.T) {
	svc, _, _, _ := newRegistrationFixture()

	if _, err := svc.Register("uuid-1", "not-a-mac", nil, ""); !errors.Is(err, ErrInvalidMacAddress) {
		t.Fatalf("Register(bad mac) = %v, want ErrInvalidMacAddress", err)
	}
}

func TestHeartbeatUpdatesLiveness(t *testing.T) {
	svc, deviceStore, sessions, _ := newRegistrationFixture()

	result, _ := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, "")
	before, _ := deviceStore.FindByID(result.DeviceID)

	time.Sleep(10 * time.Millisecond)
	hb, err := svc.Heartbeat("uuid-1", "aa:bb:cc:dd:ee:01", "online", 120)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if hb.Status != models.DeviceStatusPending {
		t.Errorf("heartbeat status = %s, want pending", hb.Status)
	}
	if hb.ServerTime.IsZero() {
		t.Error("heartbeat should carry server time")
	}

	after, _ := deviceStore.FindByID(result.DeviceID)
	if !after.LastHeartbeat.After(*before.LastHeartbeat) {
		t.Error("heartbeat should advance last_heartbeat")
	}
	if after.Statistics.TotalUptime != 120 {
		t.Errorf("total uptime = %d, want 120", after.Statistics.TotalUptime)
	}

	if _, ok := sessions.Get("uuid-1"); !ok {
		t.Error("heartbeat should keep the session alive")
	}
}

func TestHeartbeatHonorsIdle(t *testing.T) {
	svc, deviceStore, _, _ := newRegistrationFixture()

	result, _ := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, "")
	if _, err := svc.Heartbeat("uuid-1", "aa:bb:cc:dd:ee:01", "idle", 0); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	device, _ := deviceStore.FindByID(result.DeviceID)
	if device.ConnectionStatus != models.ConnectionStatusIdle {
		t.Errorf("connection status = %s, want idle", device.ConnectionStatus)
	}
}

func TestHeartbeatAuthentication(t *testing.T) {
	svc, _, _, _ := newRegistrationFixture()

	if _, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Heartbeat("unknown", "aa:bb:cc:dd:ee:01", "", 0); !errors.Is(err, ErrDeviceNotRegistered) {
		t.Errorf("Heartbeat(unknown uuid) = %v, want ErrDeviceNotRegistered", err)
	}
	if _, err := svc.Heartbeat("uuid-1", "aa:bb:cc:dd:ee:99", "", 0); !errors.Is(err, ErrCredentialMismatch) {
		t.Errorf("Heartbeat(wrong mac) = %v, want ErrCredentialMismatch", err)
	}
}

func TestPullConfigurationRequiresApproval(t *testing.T) {
	svc, deviceStore, _, _ := newRegistrationFixture()

	result, _ := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, "")

	if _, err := svc.PullConfiguration("uuid-1", "aa:bb:cc:dd:ee:01"); !errors.Is(err, ErrDeviceNotApproved) {
		t.Fatalf("PullConfiguration(pending) = %v, want ErrDeviceNotApproved", err)
	}

	room := "1204"
	if err := deviceStore.Updates(result.DeviceID, map[string]interface{}{
		"status":      models.DeviceStatusApproved,
		"room_number": &room,
	}); err != nil {
		t.Fatalf("Updates: %v", err)
	}

	payload, err := svc.PullConfiguration("uuid-1", "aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("PullConfiguration: %v", err)
	}
	if payload.RoomNumber == nil || *payload.RoomNumber != "1204" {
		t.Errorf("room = %v, want 1204", payload.RoomNumber)
	}
	if payload.PanelName != "RoomCast" {
		t.Errorf("panel name = %s", payload.PanelName)
	}
	if payload.WelcomeTemplate == "" || payload.FarewellTemplate == "" {
		t.Error("payload should carry message templates")
	}

	// 拉取计入推送统计
	device, _ := deviceStore.FindByID(result.DeviceID)
	if device.Statistics.ConfigPushCount != 1 || device.Statistics.LastConfigPush == nil {
		t.Errorf("statistics = %+v, want config pull recorded", device.Statistics)
	}
}

func TestMarkOffline(t *testing.T) {
	svc, deviceStore, _, _ := newRegistrationFixture()

	result, _ := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", nil, "")
	svc.MarkOffline("uuid-1")

	device, _ := deviceStore.FindByID(result.DeviceID)
	if device.ConnectionStatus != models.ConnectionStatusOffline {
		t.Errorf("connection status = %s, want offline", device.ConnectionStatus)
	}

	// 未知UUID静默忽略
	svc.MarkOffline("unknown")
}

// 重连合并device_info与并发读取同时发生。
// 内存存储返回浅拷贝时两者共享同一个map，-race下必然报竞争。
func TestConcurrentReregistrationAndReads(t *testing.T) {
	svc, deviceStore, _, _ := newRegistrationFixture()

	if _, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", map[string]interface{}{"model": "STB-100"}, "1.0.0"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			info := map[string]interface{}{fmt.Sprintf("key-%d", i): i}
			if _, err := svc.Register("uuid-1", "aa:bb:cc:dd:ee:01", info, ""); err != nil {
				t.Errorf("re-register: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			device, err := deviceStore.FindByUUID("uuid-1")
			if err != nil {
				t.Errorf("FindByUUID: %v", err)
				return
			}
			for range device.DeviceInfo {
			}
		}
	}()

	wg.Wait()

	// 初始键在历次合并后保留
	device, err := deviceStore.FindByUUID("uuid-1")
	if err != nil {
		t.Fatalf("FindByUUID: %v", err)
	}
	if device.DeviceInfo["model"] != "STB-100" {
		t.Errorf("device_info = %v, original keys must survive merges", device.DeviceInfo)
	}
}
