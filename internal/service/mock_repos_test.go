package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	"suncoop/backend/internal/scheduler"
	pkgerrors "suncoop/backend/pkg/errors"
)

// mockStore 内存版数据表，所有 mock 仓储共享一把锁；
// 条件更新与唯一约束按数据库实现的语义模拟。
type mockStore struct {
	mu  sync.Mutex
	seq int

	users         map[string]model.User
	locations     map[string]model.Location
	shifts        map[string]model.Shift
	changeLogs    []model.ShiftChangeLog
	entries       map[string]model.TimeEntry
	statuses      map[string]model.WifiStatus
	notifications map[string]model.Notification

	// failOn 按 "操作:ID" 注入错误
	failOn map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:         make(map[string]model.User),
		locations:     make(map[string]model.Location),
		shifts:        make(map[string]model.Shift),
		entries:       make(map[string]model.TimeEntry),
		statuses:      make(map[string]model.WifiStatus),
		notifications: make(map[string]model.Notification),
		failOn:        make(map[string]error),
	}
}

func (m *mockStore) repository() *repository.Repository {
	return &repository.Repository{
		User:           &mockUserRepo{m},
		Location:       &mockLocationRepo{m},
		Shift:          &mockShiftRepo{m},
		ShiftChangeLog: &mockChangeLogRepo{m},
		TimeEntry:      &mockTimeEntryRepo{m},
		WifiStatus:     &mockWifiStatusRepo{m},
		Notification:   &mockNotificationRepo{m},
	}
}

// nextID 调用方需持有锁
func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *mockStore) fail(op, id string) error {
	return m.failOn[op+":"+id]
}

// ── 测试读取快照 ──

func (m *mockStore) shift(id string) model.Shift {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shifts[id]
}

func (m *mockStore) entry(id string) model.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneEntry(m.entries[id])
}

func (m *mockStore) status(id string) model.WifiStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneStatus(m.statuses[id])
}

func (m *mockStore) entriesByWorker(workerID string) []model.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.TimeEntry
	for _, e := range m.entries {
		if e.WorkerID == workerID {
			list = append(list, cloneEntry(e))
		}
	}
	return list
}

func (m *mockStore) countClockedIn(workerID string) int {
	n := 0
	for _, e := range m.entriesByWorker(workerID) {
		if e.Status == model.TimeEntryStatusClockedIn {
			n++
		}
	}
	return n
}

func (m *mockStore) logsFor(shiftID string) []model.ShiftChangeLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.ShiftChangeLog
	for _, l := range m.changeLogs {
		if l.ShiftID == shiftID {
			list = append(list, l)
		}
	}
	return list
}

func cloneEntry(e model.TimeEntry) model.TimeEntry {
	e.SSIDLog = slices.Clone(e.SSIDLog)
	e.AutoClockOutReasons = slices.Clone(e.AutoClockOutReasons)
	return e
}

func cloneStatus(w model.WifiStatus) model.WifiStatus {
	w.AutoActions = slices.Clone(w.AutoActions)
	return w
}

// ── Mock UserRepository ──

type mockUserRepo struct{ m *mockStore }

func (r *mockUserRepo) Create(_ context.Context, user *model.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if user.UserID == "" {
		user.UserID = r.m.nextID("user")
	}
	r.m.users[user.UserID] = *user
	return nil
}

func (r *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		return &u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) ListActiveByRole(_ context.Context, role string) ([]model.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.User
	for _, u := range r.m.users {
		if u.Role == role && u.IsActive {
			list = append(list, u)
		}
	}
	return list, nil
}

// ── Mock LocationRepository ──

type mockLocationRepo struct{ m *mockStore }

func (r *mockLocationRepo) Create(_ context.Context, loc *model.Location) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if loc.LocationID == "" {
		loc.LocationID = r.m.nextID("loc")
	}
	r.m.locations[loc.LocationID] = *loc
	return nil
}

func (r *mockLocationRepo) GetByID(_ context.Context, id string) (*model.Location, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if l, ok := r.m.locations[id]; ok {
		return &l, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockLocationRepo) List(_ context.Context, includeInactive bool) ([]model.Location, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.Location
	for _, l := range r.m.locations {
		if !includeInactive && !l.IsActive {
			continue
		}
		list = append(list, l)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (r *mockLocationRepo) Update(_ context.Context, loc *model.Location) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.locations[loc.LocationID] = *loc
	return nil
}

// ── Mock ShiftRepository ──

type mockShiftRepo struct{ m *mockStore }

// withLocation 模拟 Preload("Location")，调用方需持有锁
func (r *mockShiftRepo) withLocation(s model.Shift) model.Shift {
	if loc, ok := r.m.locations[s.LocationID]; ok {
		s.Location = &loc
	}
	return s
}

func (r *mockShiftRepo) Create(_ context.Context, shift *model.Shift) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if shift.ShiftID == "" {
		shift.ShiftID = r.m.nextID("shift")
	}
	if shift.Version == 0 {
		shift.Version = 1
	}
	s := *shift
	s.Location = nil
	r.m.shifts[shift.ShiftID] = s
	return nil
}

func (r *mockShiftRepo) GetByID(_ context.Context, id string) (*model.Shift, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("Shift.GetByID", id); err != nil {
		return nil, err
	}
	s, ok := r.m.shifts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	s = r.withLocation(s)
	return &s, nil
}

func (r *mockShiftRepo) List(_ context.Context, f repository.ShiftFilter) ([]model.Shift, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.Shift
	for _, s := range r.m.shifts {
		if f.WorkerID != "" && !s.IsAssignedTo(f.WorkerID) {
			continue
		}
		if f.LocationID != "" && s.LocationID != f.LocationID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.From != nil && s.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && !s.StartTime.Before(*f.To) {
			continue
		}
		list = append(list, r.withLocation(s))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	total := int64(len(list))
	if f.Limit > 0 {
		end := min(f.Offset+f.Limit, len(list))
		if f.Offset >= len(list) {
			return nil, total, nil
		}
		list = list[f.Offset:end]
	}
	return list, total, nil
}

func (r *mockShiftRepo) Update(_ context.Context, shift *model.Shift) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.shifts[shift.ShiftID]
	if !ok || cur.Version != shift.Version {
		return pkgerrors.ErrOptimisticLock
	}
	shift.Version++
	s := *shift
	s.Location = nil
	// 与实现一致：Update 不覆盖自动释放与缺勤说明字段
	s.AutoUnbookedAt = cur.AutoUnbookedAt
	s.AutoUnbookReason = cur.AutoUnbookReason
	s.AutoUnbookedWorkerID = cur.AutoUnbookedWorkerID
	s.Explanation = cur.Explanation
	r.m.shifts[shift.ShiftID] = s
	return nil
}

func (r *mockShiftRepo) ListNoShowCandidates(_ context.Context, now time.Time) ([]model.Shift, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.Shift
	for _, s := range r.m.shifts {
		if s.Status == model.ShiftStatusBooked && s.AssignedTo != nil &&
			s.AutoUnbookingEnabled && s.AutoUnbookedAt == nil && !s.StartTime.After(now) {
			list = append(list, r.withLocation(s))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

// attendedLocked 调用方需持有锁
func (r *mockShiftRepo) attendedLocked(workerID, shiftID string) bool {
	for _, e := range r.m.entries {
		if e.WorkerID == workerID && e.ShiftID != nil && *e.ShiftID == shiftID && isAttended(e.Status) {
			return true
		}
	}
	return false
}

func isAttended(status string) bool {
	switch status {
	case model.TimeEntryStatusClockedIn, model.TimeEntryStatusCompleted, model.TimeEntryStatusApproved:
		return true
	}
	return false
}

func (r *mockShiftRepo) MarkAutoUnbooked(_ context.Context, mark repository.AutoUnbookMark) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("Shift.MarkAutoUnbooked", mark.ShiftID); err != nil {
		return err
	}
	s, ok := r.m.shifts[mark.ShiftID]
	if !ok || s.Status != model.ShiftStatusBooked || !s.IsAssignedTo(mark.WorkerID) ||
		s.AutoUnbookedAt != nil || r.attendedLocked(mark.WorkerID, mark.ShiftID) {
		return pkgerrors.ErrConditionNotMet
	}
	at := mark.At
	worker := mark.WorkerID
	s.Status = model.ShiftStatusAvailable
	s.AssignedTo = nil
	s.CurrentCapacity = 0
	s.AutoUnbookedAt = &at
	s.AutoUnbookReason = mark.Reason
	s.AutoUnbookedWorkerID = &worker
	s.Version++
	r.m.shifts[mark.ShiftID] = s
	return nil
}

func (r *mockShiftRepo) SaveExplanation(_ context.Context, shiftID, workerID, text string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shifts[shiftID]
	if !ok || s.AutoUnbookedAt == nil || s.AutoUnbookedWorkerID == nil ||
		*s.AutoUnbookedWorkerID != workerID || s.Explanation.SubmittedAt != nil {
		return pkgerrors.ErrConditionNotMet
	}
	w := workerID
	s.Explanation.SubmittedBy = &w
	s.Explanation.Text = text
	s.Explanation.SubmittedAt = &at
	s.Explanation.ReviewStatus = model.ReviewStatusPending
	s.Version++
	r.m.shifts[shiftID] = s
	return nil
}

func (r *mockShiftRepo) SaveReview(_ context.Context, shiftID, reviewerID, status, notes string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shifts[shiftID]
	if !ok || s.Explanation.SubmittedAt == nil ||
		s.Explanation.ReviewStatus != model.ReviewStatusPending || s.Explanation.ReviewedAt != nil {
		return pkgerrors.ErrConditionNotMet
	}
	rv := reviewerID
	s.Explanation.ReviewStatus = status
	s.Explanation.ReviewedBy = &rv
	s.Explanation.ReviewedAt = &at
	s.Explanation.ReviewNotes = notes
	s.Version++
	r.m.shifts[shiftID] = s
	return nil
}

func (r *mockShiftRepo) ListAutoUnbooked(_ context.Context, f repository.AutoUnbookedFilter) ([]model.Shift, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.Shift
	for _, s := range r.m.shifts {
		if s.AutoUnbookedAt == nil {
			continue
		}
		if f.WorkerID != "" && (s.AutoUnbookedWorkerID == nil || *s.AutoUnbookedWorkerID != f.WorkerID) {
			continue
		}
		if f.PendingReview && s.Explanation.ReviewStatus != model.ReviewStatusPending {
			continue
		}
		list = append(list, r.withLocation(s))
	}
	return list, int64(len(list)), nil
}

func (r *mockShiftRepo) ListStaleAutoUnbooked(_ context.Context, unbookedBefore, now time.Time) ([]model.Shift, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.Shift
	for _, s := range r.m.shifts {
		if s.AutoUnbookedAt != nil && s.AutoUnbookedAt.Before(unbookedBefore) &&
			s.Status == model.ShiftStatusAvailable && s.AssignedTo == nil && s.EndTime.Before(now) {
			list = append(list, s)
		}
	}
	return list, nil
}

func (r *mockShiftRepo) TransitionStatus(_ context.Context, shiftID, from, to string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shifts[shiftID]
	if !ok || s.Status != from {
		return pkgerrors.ErrConditionNotMet
	}
	s.Status = to
	s.Version++
	r.m.shifts[shiftID] = s
	return nil
}

func (r *mockShiftRepo) CountAutoUnbookStats(_ context.Context, from, to time.Time) (*repository.AutoUnbookStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var stats repository.AutoUnbookStats
	for _, s := range r.m.shifts {
		if s.AutoUnbookedAt == nil || s.AutoUnbookedAt.Before(from) || !s.AutoUnbookedAt.Before(to) {
			continue
		}
		stats.Unbooked++
		if s.Explanation.SubmittedAt != nil {
			stats.Explained++
		}
		switch s.Explanation.ReviewStatus {
		case model.ReviewStatusApproved:
			stats.Approved++
		case model.ReviewStatusRejected:
			stats.Rejected++
		}
	}
	return &stats, nil
}

// ── Mock ShiftChangeLogRepository ──

type mockChangeLogRepo struct{ m *mockStore }

func (r *mockChangeLogRepo) Create(_ context.Context, log *model.ShiftChangeLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if log.ChangeLogID == "" {
		log.ChangeLogID = r.m.nextID("log")
	}
	r.m.changeLogs = append(r.m.changeLogs, *log)
	return nil
}

func (r *mockChangeLogRepo) ListByShift(_ context.Context, shiftID string) ([]model.ShiftChangeLog, error) {
	return r.m.logsFor(shiftID), nil
}

// ── Mock TimeEntryRepository ──

type mockTimeEntryRepo struct{ m *mockStore }

func (r *mockTimeEntryRepo) Create(_ context.Context, entry *model.TimeEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	// 模拟部分唯一索引：同一成员最多一条 clocked_in
	if entry.Status == model.TimeEntryStatusClockedIn {
		for _, e := range r.m.entries {
			if e.WorkerID == entry.WorkerID && e.Status == model.TimeEntryStatusClockedIn {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if entry.TimeEntryID == "" {
		entry.TimeEntryID = r.m.nextID("entry")
	}
	if entry.Version == 0 {
		entry.Version = 1
	}
	r.m.entries[entry.TimeEntryID] = cloneEntry(*entry)
	return nil
}

func (r *mockTimeEntryRepo) GetByID(_ context.Context, id string) (*model.TimeEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.entries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (r *mockTimeEntryRepo) GetActiveByWorker(_ context.Context, workerID string) (*model.TimeEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.entries {
		if e.WorkerID == workerID && e.Status == model.TimeEntryStatusClockedIn {
			e = cloneEntry(e)
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockTimeEntryRepo) HasAttendanceForShift(_ context.Context, workerID, shiftID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("TimeEntry.HasAttendanceForShift", shiftID); err != nil {
		return false, err
	}
	return (&mockShiftRepo{r.m}).attendedLocked(workerID, shiftID), nil
}

func (r *mockTimeEntryRepo) Update(_ context.Context, entry *model.TimeEntry, expectStatus string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.entries[entry.TimeEntryID]
	if !ok || cur.Version != entry.Version || (expectStatus != "" && cur.Status != expectStatus) {
		if expectStatus != "" {
			return pkgerrors.ErrConditionNotMet
		}
		return pkgerrors.ErrOptimisticLock
	}
	entry.Version++
	r.m.entries[entry.TimeEntryID] = cloneEntry(*entry)
	return nil
}

func (r *mockTimeEntryRepo) ListByWorker(_ context.Context, workerID string, from, to time.Time) ([]model.TimeEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.TimeEntry
	for _, e := range r.m.entries {
		if e.WorkerID == workerID && !e.WorkDate.Before(from) && e.WorkDate.Before(to) {
			list = append(list, cloneEntry(e))
		}
	}
	return list, nil
}

func (r *mockTimeEntryRepo) ListStuck(_ context.Context, before time.Time) ([]model.TimeEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.TimeEntry
	for _, e := range r.m.entries {
		if e.Status == model.TimeEntryStatusClockedIn && e.ClockInAt != nil &&
			e.ClockInAt.Before(before) && e.StuckNotifiedAt == nil {
			list = append(list, cloneEntry(e))
		}
	}
	return list, nil
}

func (r *mockTimeEntryRepo) MarkStuckNotified(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.entries[id]
	if !ok || e.StuckNotifiedAt != nil {
		return pkgerrors.ErrConditionNotMet
	}
	e.StuckNotifiedAt = &at
	r.m.entries[id] = e
	return nil
}

// ── Mock WifiStatusRepository ──

type mockWifiStatusRepo struct{ m *mockStore }

func (r *mockWifiStatusRepo) Create(_ context.Context, status *model.WifiStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	// 模拟部分唯一索引：同一 (worker, location) 最多一条在线会话
	for _, w := range r.m.statuses {
		if w.WorkerID == status.WorkerID && w.LocationID == status.LocationID && w.IsOpen() {
			return gorm.ErrDuplicatedKey
		}
	}
	if status.WifiStatusID == "" {
		status.WifiStatusID = r.m.nextID("wifi")
	}
	r.m.statuses[status.WifiStatusID] = cloneStatus(*status)
	return nil
}

func (r *mockWifiStatusRepo) GetByID(_ context.Context, id string) (*model.WifiStatus, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.statuses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	w = cloneStatus(w)
	return &w, nil
}

func (r *mockWifiStatusRepo) GetOpen(_ context.Context, workerID, locationID string) (*model.WifiStatus, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, w := range r.m.statuses {
		if w.WorkerID == workerID && w.LocationID == locationID && w.IsOpen() {
			w = cloneStatus(w)
			return &w, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockWifiStatusRepo) ListOpen(_ context.Context, workerID string) ([]model.WifiStatus, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.WifiStatus
	for _, w := range r.m.statuses {
		if w.IsOpen() && (workerID == "" || w.WorkerID == workerID) {
			list = append(list, cloneStatus(w))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LocationID < list[j].LocationID })
	return list, nil
}

func (r *mockWifiStatusRepo) Close(_ context.Context, id string, at time.Time, pendingAt *time.Time, pendingReason string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.statuses[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !w.IsConnected {
		return pkgerrors.ErrConditionNotMet
	}
	w.IsConnected = false
	w.DisconnectedAt = &at
	w.DurationSeconds = max(int64(at.Sub(w.ConnectedAt)/time.Second), 0)
	w.PendingClockOutAt = pendingAt
	w.PendingClockOutReason = pendingReason
	r.m.statuses[id] = w
	return nil
}

func (r *mockWifiStatusRepo) AppendAutoAction(_ context.Context, id string, action model.AutoAction) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.statuses[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	w.AutoActions = append(slices.Clone(w.AutoActions), action)
	r.m.statuses[id] = w
	return nil
}

func (r *mockWifiStatusRepo) HasConnectionSince(_ context.Context, workerID, locationID string, since, now time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, w := range r.m.statuses {
		if w.WorkerID != workerID || w.LocationID != locationID || w.ConnectedAt.After(now) {
			continue
		}
		if w.IsOpen() || (w.DisconnectedAt != nil && !w.DisconnectedAt.Before(since)) {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockWifiStatusRepo) HasReconnectAfter(_ context.Context, workerID, locationID string, after time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, w := range r.m.statuses {
		if w.WorkerID == workerID && w.LocationID == locationID && w.IsOpen() && !w.ConnectedAt.Before(after) {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockWifiStatusRepo) ClaimPendingClockOut(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.statuses[id]
	if !ok || w.PendingClockOutAt == nil {
		return pkgerrors.ErrConditionNotMet
	}
	w.PendingClockOutAt = nil
	r.m.statuses[id] = w
	return nil
}

func (r *mockWifiStatusRepo) ClearPendingClockOuts(_ context.Context, workerID, locationID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, w := range r.m.statuses {
		if w.WorkerID == workerID && w.LocationID == locationID && w.PendingClockOutAt != nil {
			w.PendingClockOutAt = nil
			r.m.statuses[id] = w
			n++
		}
	}
	return n, nil
}

func (r *mockWifiStatusRepo) ListDuePendingClockOuts(_ context.Context, now time.Time) ([]model.WifiStatus, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.WifiStatus
	for _, w := range r.m.statuses {
		if w.PendingClockOutAt != nil && !w.PendingClockOutAt.After(now) {
			list = append(list, cloneStatus(w))
		}
	}
	return list, nil
}

func (r *mockWifiStatusRepo) ListHistory(_ context.Context, workerID string, from, to time.Time) ([]model.WifiStatus, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.WifiStatus
	for _, w := range r.m.statuses {
		if w.WorkerID == workerID && !w.ConnectedAt.Before(from) && !w.ConnectedAt.After(to) {
			list = append(list, cloneStatus(w))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ConnectedAt.After(list[j].ConnectedAt) })
	return list, nil
}

func (r *mockWifiStatusRepo) DeleteClosedBefore(_ context.Context, before time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, w := range r.m.statuses {
		if !w.IsConnected && w.DisconnectedAt != nil && w.DisconnectedAt.Before(before) && w.PendingClockOutAt == nil {
			delete(r.m.statuses, id)
			n++
		}
	}
	return n, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct{ m *mockStore }

func (r *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = r.m.nextID("notify")
	}
	r.m.notifications[n.NotificationID] = *n
	return nil
}

func (r *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var list []model.Notification
	for _, n := range r.m.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].NotificationID < list[j].NotificationID })
	total := int64(len(list))
	if offset >= len(list) {
		return nil, total, nil
	}
	return list[offset:min(offset+limit, len(list))], total, nil
}

func (r *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n, ok := r.m.notifications[id]
	if !ok || n.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	n.IsRead = true
	r.m.notifications[id] = n
	return nil
}

// ── 通知与调度替身 ──

type sentNotification struct {
	Recipient string // 管理员广播时为空
	Kind      string
	Payload   NotificationPayload
}

// recordingNotifier 同步记录通知，便于断言次数
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, recipientID, kind string, payload NotificationPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipientID, Kind: kind, Payload: payload})
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, kind string, payload NotificationPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Kind: kind, Payload: payload})
}

func (n *recordingNotifier) count(recipient, kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Recipient == recipient && s.Kind == kind {
			c++
		}
	}
	return c
}

type fakeTimer struct {
	name  string
	delay time.Duration
	task  scheduler.Task
}

// fakeOnceScheduler 手动触发的一次性调度器
type fakeOnceScheduler struct {
	mu      sync.Mutex
	seq     int
	pending map[scheduler.Handle]fakeTimer
	issued  map[scheduler.Handle]scheduler.Task // 含已取消的，用于模拟取消与触发的竞争
	last    scheduler.Handle
}

func newFakeOnceScheduler() *fakeOnceScheduler {
	return &fakeOnceScheduler{
		pending: make(map[scheduler.Handle]fakeTimer),
		issued:  make(map[scheduler.Handle]scheduler.Task),
	}
}

func (f *fakeOnceScheduler) ScheduleOnce(name string, delay time.Duration, task scheduler.Task) scheduler.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	h := scheduler.Handle(fmt.Sprintf("timer-%d", f.seq))
	f.pending[h] = fakeTimer{name: name, delay: delay, task: task}
	f.issued[h] = task
	f.last = h
	return h
}

func (f *fakeOnceScheduler) lastHandle() scheduler.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// runLate 执行指定句柄的任务，即使它已被取消（定时器已触发、回调尚未拿到锁的情形）
func (f *fakeOnceScheduler) runLate(ctx context.Context, h scheduler.Handle) error {
	f.mu.Lock()
	task := f.issued[h]
	f.mu.Unlock()
	return task(ctx)
}

func (f *fakeOnceScheduler) Cancel(h scheduler.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[h]; !ok {
		return false
	}
	delete(f.pending, h)
	return true
}

func (f *fakeOnceScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// fireAll 触发当前全部待执行任务，返回第一个错误
func (f *fakeOnceScheduler) fireAll(ctx context.Context) error {
	f.mu.Lock()
	timers := make([]fakeTimer, 0, len(f.pending))
	for h, t := range f.pending {
		timers = append(timers, t)
		delete(f.pending, h)
	}
	f.mu.Unlock()

	var first error
	for _, t := range timers {
		if err := t.task(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
