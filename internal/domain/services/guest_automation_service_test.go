package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
)

type guestFixture struct {
	svc       *GuestAutomationService
	store     store.DeviceStore
	sessions  *SessionService
	publisher *fakePublisher
	source    *fakeReservationSource
}

func newGuestFixture() *guestFixture {
	deviceStore := store.NewMemoryDeviceStore()
	sessions := newTestSessions()
	publisher := newFakePublisher()
	push := NewPushService(publisher, sessions)
	source := newFakeReservationSource()
	return &guestFixture{
		svc:       NewGuestAutomationService(deviceStore, source, push, testConfig()),
		store:     deviceStore,
		sessions:  sessions,
		publisher: publisher,
		source:    source,
	}
}

// seedRoomDevice 创建一台已批准、分配了房间且在线的设备
func (f *guestFixture) seedRoomDevice(t *testing.T, uuid, room string) *models.Device {
	t.Helper()
	device := &models.Device{
		UUID:       uuid,
		MACAddress: "AA:BB:CC:DD:EE:" + uuid[len(uuid)-2:],
		Status:     models.DeviceStatusApproved,
		RoomNumber: &room,
	}
	if err := f.store.Create(device); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	f.sessions.Connect(uuid)
	return device
}

func TestSweepSendsWelcomeInWindow(t *testing.T) {
	f := newGuestFixture()
	device := f.seedRoomDevice(t, "uuid-01", "801")

	now := time.Now()
	f.source.reservations["801"] = &ReservationState{
		GuestName:    "张三",
		CheckInTime:  now.Add(-5 * time.Minute),
		CheckOutTime: now.Add(48 * time.Hour),
	}

	summary := f.svc.RunSweep(now)
	if summary.WelcomesSent != 1 {
		t.Fatalf("WelcomesSent = %d, want 1", summary.WelcomesSent)
	}

	msgs := f.publisher.messagesTo(DeviceTopic("uuid-01"))
	if len(msgs) != 1 {
		t.Fatalf("device received %d messages, want 1", len(msgs))
	}
	if !strings.Contains(string(msgs[0].Payload), "张三") {
		t.Error("welcome message should contain the rendered guest name")
	}

	// 发送时间戳落库
	got, _ := f.store.FindByID(device.ID)
	if got.Statistics.LastWelcomeMessage == nil {
		t.Error("welcome timestamp should be recorded")
	}
	if got.Statistics.MessagesReceived != 1 {
		t.Errorf("MessagesReceived = %d, want 1", got.Statistics.MessagesReceived)
	}
}

func TestSweepSkipsWelcomeOutsideWindow(t *testing.T) {
	f := newGuestFixture()
	f.seedRoomDevice(t, "uuid-01", "801")

	now := time.Now()
	f.source.reservations["801"] = &ReservationState{
		GuestName:    "张三",
		CheckInTime:  now.Add(-30 * time.Minute), // 超出15分钟触发窗口
		CheckOutTime: now.Add(48 * time.Hour),
	}

	summary := f.svc.RunSweep(now)
	if summary.WelcomesSent != 0 {
		t.Fatalf("WelcomesSent = %d, want 0 outside trigger window", summary.WelcomesSent)
	}
}

// 去重窗口内重复扫描不再发送
func TestWelcomeDeduplication(t *testing.T) {
	f := newGuestFixture()
	f.seedRoomDevice(t, "uuid-01", "801")

	now := time.Now()
	f.source.reservations["801"] = &ReservationState{
		GuestName:    "张三",
		CheckInTime:  now.Add(-5 * time.Minute),
		CheckOutTime: now.Add(48 * time.Hour),
	}

	if s := f.svc.RunSweep(now); s.WelcomesSent != 1 {
		t.Fatalf("first sweep WelcomesSent = %d, want 1", s.WelcomesSent)
	}
	if s := f.svc.RunSweep(now.Add(2 * time.Minute)); s.WelcomesSent != 0 {
		t.Fatalf("second sweep WelcomesSent = %d, want 0 within dedup window", s.WelcomesSent)
	}
	if len(f.publisher.messagesTo(DeviceTopic("uuid-01"))) != 1 {
		t.Fatal("device must receive exactly one welcome message")
	}
}

func TestSweepSendsFarewellBeforeCheckout(t *testing.T) {
	f := newGuestFixture()
	device := f.seedRoomDevice(t, "uuid-01", "801")

	now := time.Now()
	f.source.reservations["801"] = &ReservationState{
		GuestName:    "李四",
		CheckInTime:  now.Add(-24 * time.Hour),
		CheckOutTime: now.Add(10 * time.Minute),
	}

	summary := f.svc.RunSweep(now)
	if summary.FarewellsSent != 1 {
		t.Fatalf("FarewellsSent = %d, want 1", summary.FarewellsSent)
	}

	got, _ := f.store.FindByID(device.ID)
	if got.Statistics.LastFarewellMessage == nil {
		t.Error("farewell timestamp should be recorded")
	}
}

func TestFarewellNotSentAfterCheckout(t *testing.T) {
	f := newGuestFixture()
	f.seedRoomDevice(t, "uuid-01", "801")

	now := time.Now()
	f.source.reservations["801"] = &ReservationState{
		GuestName:    "李四",
		CheckInTime:  now.Add(-24 * time.Hour),
		CheckOutTime: now.Add(-1 * time.Minute), // 已过退房时间
	}

	if s := f.svc.RunSweep(now); s.FarewellsSent != 0 {
		t.Fatalf("FarewellsSent = %d, want 0 after checkout", s.FarewellsSent)
	}
}

// PMS断连时整轮扫描短路，不查询任何房间
func TestSweepShortCircuitsWhenPMSDisconnected(t *testing.T) {
	f := newGuestFixture()
	f.seedRoomDevice(t, "uuid-01", "801")
	f.source.connected = false

	summary := f.svc.RunSweep(time.Now())
	if summary.Checked != 0 {
		t.Fatalf("Checked = %d, want 0 when PMS disconnected", summary.Checked)
	}
	if len(f.source.queries) != 0 {
		t.Fatal("no room queries should be issued when PMS is disconnected")
	}
}

// 单个房间的查询失败只跳过该设备，其余设备照常处理
func TestSweepIsolatesPerDeviceFailures(t *testing.T) {
	f := newGuestFixture()
	f.seedRoomDevice(t, "uuid-01", "801")
	f.seedRoomDevice(t, "uuid-02", "802")

	now := time.Now()
	f.source.reservations["802"] = &ReservationState{
		GuestName:    "王五",
		CheckInTime:  now.Add(-5 * time.Minute),
		CheckOutTime: now.Add(48 * time.Hour),
	}

	// 第一个房间查询失败
	f.source.mu.Lock()
	f.source.queryErr = errors.New("pms timeout")
	f.source.mu.Unlock()

	// queryErr对所有查询生效，两台设备都被跳过
	summary := f.svc.RunSweep(now)
	if summary.Skipped != 2 || summary.WelcomesSent != 0 {
		t.Fatalf("summary = %+v, want both devices skipped on query error", summary)
	}

	// 清除错误后第二轮正常发送
	f.source.mu.Lock()
	f.source.queryErr = nil
	f.source.mu.Unlock()

	summary = f.svc.RunSweep(now)
	if summary.WelcomesSent != 1 {
		t.Fatalf("WelcomesSent = %d after error cleared, want 1", summary.WelcomesSent)
	}
}

// 投递失败不落去重时间戳，下一轮重新尝试
func TestUndeliveredMessageDoesNotStampDedup(t *testing.T) {
	f := newGuestFixture()
	device := &models.Device{
		UUID:       "uuid-01",
		MACAddress: "AA:BB:CC:DD:EE:01",
		Status:     models.DeviceStatusApproved,
	}
	room := "801"
	device.RoomNumber = &room
	if err := f.store.Create(device); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	// 设备无会话，消息无法投递

	now := time.Now()
	f.source.reservations["801"] = &ReservationState{
		GuestName:    "张三",
		CheckInTime:  now.Add(-5 * time.Minute),
		CheckOutTime: now.Add(48 * time.Hour),
	}

	summary := f.svc.RunSweep(now)
	if summary.WelcomesSent != 0 {
		t.Fatalf("WelcomesSent = %d, want 0 for disconnected device", summary.WelcomesSent)
	}

	got, _ := f.store.FindByID(device.ID)
	if got.Statistics.LastWelcomeMessage != nil {
		t.Error("undelivered welcome must not stamp the dedup timestamp")
	}

	// 设备上线后的下一轮补发
	f.sessions.Connect("uuid-01")
	if s := f.svc.RunSweep(now.Add(time.Minute)); s.WelcomesSent != 1 {
		t.Fatalf("WelcomesSent = %d after device connected, want 1", s.WelcomesSent)
	}
}

func TestRenderTemplate(t *testing.T) {
	checkIn := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	reservation := &ReservationState{
		GuestName:    "张三",
		CheckInTime:  checkIn,
		CheckOutTime: checkOut,
	}

	got := renderTemplate("{{guest_name}}|{{room_number}}|{{check_in_time}}|{{check_out_time}}", "801", reservation)
	want := "张三|801|2026-08-28 14:00|2026-08-30 12:00"
	if got != want {
		t.Errorf("renderTemplate = %q, want %q", got, want)
	}

	// 未知占位符原样保留
	got = renderTemplate("hello {{unknown}}", "801", reservation)
	if got != "hello {{unknown}}" {
		t.Errorf("renderTemplate = %q, unknown placeholders should pass through", got)
	}
}

func TestDedupExpired(t *testing.T) {
	now := time.Now()
	old := now.Add(-25 * time.Hour)
	recent := now.Add(-1 * time.Hour)

	if !dedupExpired(nil, now, WelcomeDedupWindow) {
		t.Error("nil last-sent should always be expired")
	}
	if !dedupExpired(&old, now, WelcomeDedupWindow) {
		t.Error("25h old timestamp should be expired for 24h window")
	}
	if dedupExpired(&recent, now, WelcomeDedupWindow) {
		t.Error("1h old timestamp should not be expired for 24h window")
	}
}
