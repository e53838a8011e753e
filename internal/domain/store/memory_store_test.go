package store

import (
	"errors"
	"testing"
	"time"

	"roomcast-http-service/internal/domain/models"
)

func newTestDevice(uuid, mac string) *models.Device {
	return &models.Device{
		UUID:         uuid,
		MACAddress:   mac,
		Status:       models.DeviceStatusPending,
		FirstContact: time.Now(),
	}
}

func TestMemoryStoreCreateAssignsIDs(t *testing.T) {
	s := NewMemoryDeviceStore()

	d1 := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	d2 := newTestDevice("uuid-2", "AA:BB:CC:DD:EE:02")

	if err := s.Create(d1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(d2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if d1.ID == 0 || d2.ID == 0 {
		t.Fatal("Create should assign non-zero IDs")
	}
	if d1.ID == d2.ID {
		t.Fatal("Create should assign distinct IDs")
	}
}

func TestMemoryStoreFindLookups(t *testing.T) {
	s := NewMemoryDeviceStore()
	d := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	if err := s.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got, err := s.FindByID(d.ID); err != nil || got.UUID != "uuid-1" {
		t.Errorf("FindByID = %v, %v", got, err)
	}
	if got, err := s.FindByUUID("uuid-1"); err != nil || got.ID != d.ID {
		t.Errorf("FindByUUID = %v, %v", got, err)
	}
	if got, err := s.FindByMAC("AA:BB:CC:DD:EE:01"); err != nil || got.ID != d.ID {
		t.Errorf("FindByMAC = %v, %v", got, err)
	}

	if _, err := s.FindByUUID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByUUID(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.FindByID(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID(999) = %v, want ErrNotFound", err)
	}
}

// 读取返回的是副本，调用方的修改不能影响存储内的记录
func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryDeviceStore()
	d := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	if err := s.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.FindByID(d.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	got.Name = "mutated"

	again, err := s.FindByID(d.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if again.Name == "mutated" {
		t.Fatal("store record was mutated through a returned copy")
	}
}

// 引用类型字段也必须是深拷贝，否则副本和存储记录共享底层map/slice
func TestMemoryStoreDeepCopiesReferenceFields(t *testing.T) {
	s := NewMemoryDeviceStore()
	d := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	d.DeviceInfo = map[string]interface{}{"model": "STB-100"}
	d.Configuration.AppLayout = []models.AppLayoutItem{{AppID: 1, Position: 0, IsVisible: true}}
	if err := s.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 创建后修改调用方持有的原对象
	d.DeviceInfo["model"] = "tampered"
	d.Configuration.AppLayout[0].AppID = 99

	got, err := s.FindByID(d.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.DeviceInfo["model"] != "STB-100" {
		t.Error("store record shares DeviceInfo map with the caller's object")
	}
	if got.Configuration.AppLayout[0].AppID != 1 {
		t.Error("store record shares AppLayout slice with the caller's object")
	}

	// 修改返回副本的引用字段
	got.DeviceInfo["injected"] = true
	got.Configuration.AppLayout[0].IsVisible = false

	again, _ := s.FindByID(d.ID)
	if _, ok := again.DeviceInfo["injected"]; ok {
		t.Error("store record was mutated through a returned copy's DeviceInfo")
	}
	if !again.Configuration.AppLayout[0].IsVisible {
		t.Error("store record was mutated through a returned copy's AppLayout")
	}

	// Updates不保留调用方传入的map
	info := map[string]interface{}{"firmware": "2.0"}
	if err := s.Updates(d.ID, map[string]interface{}{"device_info": info}); err != nil {
		t.Fatalf("Updates: %v", err)
	}
	info["firmware"] = "tampered"

	final, _ := s.FindByID(d.ID)
	if final.DeviceInfo["firmware"] != "2.0" {
		t.Error("store retained the caller's map passed to Updates")
	}
}

func TestMemoryStoreUpdates(t *testing.T) {
	s := NewMemoryDeviceStore()
	d := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	if err := s.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	room := "1204"
	err := s.Updates(d.ID, map[string]interface{}{
		"status":            models.DeviceStatusApproved,
		"connection_status": models.ConnectionStatusOnline,
		"room_number":       &room,
		"last_heartbeat":    &now,
		"approved_by":       "admin:1",
		"approved_at":       &now,
	})
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}

	got, err := s.FindByID(d.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != models.DeviceStatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
	if got.RoomNumber == nil || *got.RoomNumber != "1204" {
		t.Errorf("room_number = %v, want 1204", got.RoomNumber)
	}
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(now) {
		t.Errorf("last_heartbeat = %v, want %v", got.LastHeartbeat, now)
	}

	// room_number 显式置空
	if err := s.Updates(d.ID, map[string]interface{}{"room_number": nil}); err != nil {
		t.Fatalf("Updates: %v", err)
	}
	got, _ = s.FindByID(d.ID)
	if got.RoomNumber != nil {
		t.Errorf("room_number = %v, want nil", got.RoomNumber)
	}

	if err := s.Updates(999, map[string]interface{}{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Updates(999) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryDeviceStore()
	room := "801"

	pending := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	approved := newTestDevice("uuid-2", "AA:BB:CC:DD:EE:02")
	approved.Status = models.DeviceStatusApproved
	approved.RoomNumber = &room
	approvedNoRoom := newTestDevice("uuid-3", "AA:BB:CC:DD:EE:03")
	approvedNoRoom.Status = models.DeviceStatusApproved

	for _, d := range []*models.Device{pending, approved, approvedNoRoom} {
		if err := s.Create(d); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := s.List("")
	if err != nil || len(all) != 3 {
		t.Fatalf("List(\"\") = %d devices, %v; want 3", len(all), err)
	}
	// 结果按ID排序
	for i := 1; i < len(all); i++ {
		if all[i-1].ID > all[i].ID {
			t.Fatal("List results should be sorted by ID")
		}
	}

	approvedOnly, err := s.List(models.DeviceStatusApproved)
	if err != nil || len(approvedOnly) != 2 {
		t.Fatalf("List(approved) = %d devices, %v; want 2", len(approvedOnly), err)
	}

	withRoom, err := s.ListApprovedWithRoom()
	if err != nil || len(withRoom) != 1 || withRoom[0].UUID != "uuid-2" {
		t.Fatalf("ListApprovedWithRoom = %v, %v; want only uuid-2", withRoom, err)
	}

	count, err := s.Count(models.DeviceStatusPending)
	if err != nil || count != 1 {
		t.Fatalf("Count(pending) = %d, %v; want 1", count, err)
	}
}

func TestMemoryStoreFindApprovedByRoom(t *testing.T) {
	s := NewMemoryDeviceStore()
	room := "801"

	occupant := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	occupant.Status = models.DeviceStatusApproved
	occupant.RoomNumber = &room
	if err := s.Create(occupant); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 同房间的pending设备不计入占用
	pendingSameRoom := newTestDevice("uuid-2", "AA:BB:CC:DD:EE:02")
	pendingSameRoom.RoomNumber = &room
	if err := s.Create(pendingSameRoom); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.FindApprovedByRoom("801")
	if err != nil || got.UUID != "uuid-1" {
		t.Fatalf("FindApprovedByRoom = %v, %v; want uuid-1", got, err)
	}

	if _, err := s.FindApprovedByRoom("802"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindApprovedByRoom(802) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryDeviceStore()
	d := newTestDevice("uuid-1", "AA:BB:CC:DD:EE:01")
	if err := s.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Delete(d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.FindByID(d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete twice = %v, want ErrNotFound", err)
	}
}
