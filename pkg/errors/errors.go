package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrConditionNotMet 条件更新未命中：记录当前状态已不满足前置条件（CAS 失败）
var ErrConditionNotMet = errors.New("记录状态已变更，条件更新未生效")
