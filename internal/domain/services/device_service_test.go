package services

import (
	"errors"
	"testing"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
)

type deviceFixture struct {
	svc       InterfaceDeviceService
	store     store.DeviceStore
	sessions  *SessionService
	publisher *fakePublisher
}

func newDeviceFixture() *deviceFixture {
	deviceStore := store.NewMemoryDeviceStore()
	sessions := newTestSessions()
	publisher := newFakePublisher()
	push := NewPushService(publisher, sessions)
	return &deviceFixture{
		svc:       NewDeviceService(deviceStore, testConfig(), sessions, push, nil),
		store:     deviceStore,
		sessions:  sessions,
		publisher: publisher,
	}
}

func (f *deviceFixture) seed(t *testing.T, uuid string, status models.DeviceStatus, heartbeatAge time.Duration) *models.Device {
	t.Helper()
	hb := time.Now().Add(-heartbeatAge)
	device := &models.Device{
		UUID:             uuid,
		MACAddress:       "AA:BB:CC:DD:EE:" + uuid[len(uuid)-2:],
		Status:           status,
		ConnectionStatus: models.ConnectionStatusOnline,
		LastHeartbeat:    &hb,
		Configuration:    models.DefaultConfiguration(),
	}
	if err := f.store.Create(device); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return device
}

// 列表返回的连接状态是基于心跳的推导值，不是存储里的过期字段
func TestGetAllDevicesDerivesConnectionStatus(t *testing.T) {
	f := newDeviceFixture()
	f.seed(t, "uuid-01", models.DeviceStatusApproved, 10*time.Second)
	f.seed(t, "uuid-02", models.DeviceStatusApproved, 10*time.Minute) // 超过300秒超时

	devices, err := f.svc.GetAllDevices("")
	if err != nil {
		t.Fatalf("GetAllDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	if devices[0].ConnectionStatus != models.ConnectionStatusOnline {
		t.Errorf("fresh device = %s, want online", devices[0].ConnectionStatus)
	}
	if devices[1].ConnectionStatus != models.ConnectionStatusOffline {
		t.Errorf("stale device = %s, want derived offline despite stored online", devices[1].ConnectionStatus)
	}
}

func TestGetAllDevicesStatusFilter(t *testing.T) {
	f := newDeviceFixture()
	f.seed(t, "uuid-01", models.DeviceStatusPending, time.Second)
	f.seed(t, "uuid-02", models.DeviceStatusApproved, time.Second)

	pending, err := f.svc.GetAllDevices("pending")
	if err != nil || len(pending) != 1 || pending[0].UUID != "uuid-01" {
		t.Fatalf("GetAllDevices(pending) = %v, %v", pending, err)
	}
}

func TestUpdateDeviceRoomConflict(t *testing.T) {
	f := newDeviceFixture()

	occupant := f.seed(t, "uuid-01", models.DeviceStatusApproved, time.Second)
	room := "801"
	if err := f.store.Updates(occupant.ID, map[string]interface{}{"room_number": &room}); err != nil {
		t.Fatalf("Updates: %v", err)
	}

	other := f.seed(t, "uuid-02", models.DeviceStatusApproved, time.Second)
	_, err := f.svc.UpdateDevice(other.ID, UpdateDeviceInput{RoomNumber: &room})
	if !errors.Is(err, ErrRoomConflict) {
		t.Fatalf("UpdateDevice into occupied room = %v, want ErrRoomConflict", err)
	}

	// 占用者自己改同一房间不算冲突
	if _, err := f.svc.UpdateDevice(occupant.ID, UpdateDeviceInput{RoomNumber: &room}); err != nil {
		t.Fatalf("UpdateDevice same occupant = %v, want nil", err)
	}
}

func TestUpdateDeviceClearRoom(t *testing.T) {
	f := newDeviceFixture()
	device := f.seed(t, "uuid-01", models.DeviceStatusApproved, time.Second)
	room := "801"
	if err := f.store.Updates(device.ID, map[string]interface{}{"room_number": &room}); err != nil {
		t.Fatalf("Updates: %v", err)
	}

	updated, err := f.svc.UpdateDevice(device.ID, UpdateDeviceInput{ClearRoom: true})
	if err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	if updated.RoomNumber != nil {
		t.Errorf("room = %v, want cleared", updated.RoomNumber)
	}
}

func TestDeleteDeviceEvictsSession(t *testing.T) {
	f := newDeviceFixture()
	device := f.seed(t, "uuid-01", models.DeviceStatusApproved, time.Second)
	f.sessions.Connect("uuid-01")

	if err := f.svc.DeleteDevice(device.ID); err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}

	if _, err := f.store.FindByID(device.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("device record should be gone")
	}
	if _, ok := f.sessions.Get("uuid-01"); ok {
		t.Error("session must be evicted synchronously on delete")
	}
	if len(f.publisher.messagesTo(TopicAdminDevices)) != 1 {
		t.Error("delete should broadcast to admins")
	}

	if err := f.svc.DeleteDevice(device.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeleteDevice twice = %v, want ErrDeviceNotFound", err)
	}
}

func TestPushConfigurationRequiresApproval(t *testing.T) {
	f := newDeviceFixture()
	pending := f.seed(t, "uuid-01", models.DeviceStatusPending, time.Second)
	f.sessions.Connect("uuid-01")

	if _, err := f.svc.PushConfiguration(pending.ID); !errors.Is(err, ErrDeviceNotApproved) {
		t.Fatalf("PushConfiguration(pending) = %v, want ErrDeviceNotApproved", err)
	}
}

func TestPushConfigurationStampsStatisticsOnDelivery(t *testing.T) {
	f := newDeviceFixture()
	device := f.seed(t, "uuid-01", models.DeviceStatusApproved, time.Second)
	f.sessions.Connect("uuid-01")

	result, err := f.svc.PushConfiguration(device.ID)
	if err != nil {
		t.Fatalf("PushConfiguration: %v", err)
	}
	if result != DeliveryDelivered {
		t.Fatalf("result = %s, want delivered", result)
	}

	got, _ := f.store.FindByID(device.ID)
	if got.Statistics.ConfigPushCount != 1 || got.Statistics.LastConfigPush == nil {
		t.Errorf("statistics = %+v, want push recorded", got.Statistics)
	}
}

// 离线设备的推送结果为未连接，统计不变
func TestPushConfigurationOfflineNotCounted(t *testing.T) {
	f := newDeviceFixture()
	device := f.seed(t, "uuid-01", models.DeviceStatusApproved, time.Second)

	result, err := f.svc.PushConfiguration(device.ID)
	if err != nil {
		t.Fatalf("PushConfiguration: %v", err)
	}
	if result != DeliveryNotConnected {
		t.Fatalf("result = %s, want device_not_connected", result)
	}

	got, _ := f.store.FindByID(device.ID)
	if got.Statistics.ConfigPushCount != 0 {
		t.Errorf("ConfigPushCount = %d, want 0 for undelivered push", got.Statistics.ConfigPushCount)
	}
}

func TestGetFleetStats(t *testing.T) {
	f := newDeviceFixture()
	f.seed(t, "uuid-01", models.DeviceStatusApproved, 10*time.Second)  // online
	f.seed(t, "uuid-02", models.DeviceStatusApproved, 10*time.Minute)  // offline by derivation
	f.seed(t, "uuid-03", models.DeviceStatusPending, 10*time.Second)   // online
	f.seed(t, "uuid-04", models.DeviceStatusRejected, 10*time.Minute)  // offline

	f.sessions.Connect("uuid-01")
	f.sessions.Connect("uuid-03")

	stats, err := f.svc.GetFleetStats()
	if err != nil {
		t.Fatalf("GetFleetStats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.Approved != 2 || stats.Pending != 1 || stats.Rejected != 1 {
		t.Errorf("status counts = approved:%d pending:%d rejected:%d", stats.Approved, stats.Pending, stats.Rejected)
	}
	if stats.Online != 2 || stats.Offline != 2 {
		t.Errorf("derived liveness = online:%d offline:%d, want 2/2", stats.Online, stats.Offline)
	}
	if stats.ActiveSessions != 2 {
		t.Errorf("ActiveSessions = %d, want 2", stats.ActiveSessions)
	}
}
