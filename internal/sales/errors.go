package sales

import (
	"errors"
	"fmt"
)

// 错误分类：调用方用 errors.Is 判断，每个操作只返回其中一种。
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")

	// ErrInvalidRange 起始日期晚于结束日期，同时也是 ErrValidation。
	ErrInvalidRange = fmt.Errorf("%w: invalid range", ErrValidation)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// storageErr 把存储层错误归类为 ErrStorage；存储层已归类的错误原样透传。
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
