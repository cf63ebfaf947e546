package rdb

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrConfirmationRequired 写操作没有显式确认
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrEmptyPredicate update/delete 没有任何条件
	ErrEmptyPredicate = errors.New("refusing to run without a where clause")
	ErrValidation     = errors.New("validation failed")
	ErrExecution      = errors.New("execution failed")
	// ErrJoinConfig join 参数不合法，在 Join 时记录，执行时返回
	ErrJoinConfig       = errors.New("invalid join configuration")
	ErrUnknownRelation  = errors.New("unknown relation")
	ErrTableNotFound    = errors.New("table not found")
	ErrConnectionClosed = errors.New("connection closed")
)

// ValidationError 非空字段没有赋值
type ValidationError struct {
	Table string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field %s.%s is required", e.Table, e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidationErrors 批量插入时被跳过的对象，按原始下标记录
type ValidationErrors struct {
	Table  string
	Index  []int
	Errors []error
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = fmt.Sprintf("#%d: %v", e.Index[i], err)
	}
	return fmt.Sprintf("%d object(s) skipped on %s: %s", len(e.Errors), e.Table, strings.Join(parts, "; "))
}

func (e *ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// ExecutionError 执行失败并已尝试回滚
type ExecutionError struct {
	Op          string
	Table       string
	SQL         string
	Err         error
	RollbackErr error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}
