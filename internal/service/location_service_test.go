package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/model"
)

// ── 测试辅助 ──

func setupTestLocationService() (LocationService, *mockStore) {
	store := newMockStore()
	svc := NewLocationService(store.repository(), zap.NewNop())
	return svc, store
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }

// ── Create 测试 ──

func TestLocationService_Create_Success(t *testing.T) {
	svc, _ := setupTestLocationService()

	req := &dto.CreateLocationRequest{
		Name:                     "朝阳门店",
		Address:                  "朝阳路 88 号",
		WifiTrackingEnabled:      true,
		WifiSSID:                 "SunCoop-Chaoyang",
		AutoClockOutDelaySeconds: 120,
	}

	result, err := svc.Create(context.Background(), req, "admin-001")
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if result.Name != "朝阳门店" {
		t.Errorf("期望Name=朝阳门店，实际=%s", result.Name)
	}
	if !result.IsActive || !result.WifiTrackingEnabled {
		t.Error("期望新地点启用且开启 WiFi 考勤")
	}
	if result.AutoClockOutDelaySeconds != 120 {
		t.Errorf("期望延迟=120，实际=%d", result.AutoClockOutDelaySeconds)
	}
}

func TestLocationService_Create_SSIDRequired(t *testing.T) {
	svc, _ := setupTestLocationService()

	_, err := svc.Create(context.Background(), &dto.CreateLocationRequest{
		Name:                "无 SSID 门店",
		WifiTrackingEnabled: true,
	}, "admin-001")
	if !errors.Is(err, ErrLocationSSIDEmpty) {
		t.Errorf("期望 ErrLocationSSIDEmpty，实际: %v", err)
	}
}

// ── GetByID 测试 ──

func TestLocationService_GetByID_Success(t *testing.T) {
	svc, store := setupTestLocationService()
	store.locations["loc-001"] = model.Location{
		LocationID: "loc-001",
		Name:       "一号店",
		IsActive:   true,
	}

	result, err := svc.GetByID(context.Background(), "loc-001")
	if err != nil {
		t.Fatalf("GetByID 应成功: %v", err)
	}
	if result.Name != "一号店" {
		t.Errorf("期望Name=一号店，实际=%s", result.Name)
	}
}

func TestLocationService_GetByID_NotFound(t *testing.T) {
	svc, _ := setupTestLocationService()

	_, err := svc.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("期望 ErrLocationNotFound，实际: %v", err)
	}
}

// ── List 测试 ──

func TestLocationService_List(t *testing.T) {
	svc, store := setupTestLocationService()
	store.locations["loc-001"] = model.Location{LocationID: "loc-001", Name: "A 店", IsActive: true}
	store.locations["loc-002"] = model.Location{LocationID: "loc-002", Name: "B 店", IsActive: false}

	active, err := svc.List(context.Background(), &dto.LocationListRequest{})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("期望 1 个启用地点，实际 %d", len(active))
	}

	all, _ := svc.List(context.Background(), &dto.LocationListRequest{IncludeInactive: true})
	if len(all) != 2 {
		t.Errorf("期望 2 个地点，实际 %d", len(all))
	}
}

// ── Update 测试 ──

func TestLocationService_Update_Success(t *testing.T) {
	svc, store := setupTestLocationService()
	store.locations["loc-001"] = model.Location{LocationID: "loc-001", Name: "旧名称", IsActive: true}

	result, err := svc.Update(context.Background(), "loc-001", &dto.UpdateLocationRequest{
		Name:                strPtr("新名称"),
		WifiTrackingEnabled: boolPtr(true),
		WifiSSID:            strPtr("SunCoop-New"),
		GracePeriodSeconds:  intPtr(300),
	}, "admin-001")
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if result.Name != "新名称" || result.WifiSSID != "SunCoop-New" || result.GracePeriodSeconds != 300 {
		t.Errorf("更新结果不符: %+v", result)
	}
}

func TestLocationService_Update_Errors(t *testing.T) {
	svc, store := setupTestLocationService()
	store.locations["loc-001"] = model.Location{LocationID: "loc-001", Name: "一号店", IsActive: true}

	_, err := svc.Update(context.Background(), "nonexistent", &dto.UpdateLocationRequest{Name: strPtr("x")}, "admin-001")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("期望 ErrLocationNotFound，实际: %v", err)
	}

	_, err = svc.Update(context.Background(), "loc-001", &dto.UpdateLocationRequest{WifiTrackingEnabled: boolPtr(true)}, "admin-001")
	if !errors.Is(err, ErrLocationSSIDEmpty) {
		t.Errorf("期望 ErrLocationSSIDEmpty，实际: %v", err)
	}
	if store.locations["loc-001"].WifiTrackingEnabled {
		t.Error("校验失败时不应写入")
	}
}
