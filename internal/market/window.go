package market

import (
	"errors"
	"fmt"
)

const (
	// PageSize 单次请求最多返回的应用数
	PageSize = 100
	// MaxListWindow 每个子分类最多可抓取的位置 (limit + offset)
	MaxListWindow = 500
)

// ErrInvalidWindow 抓取范围非法
var ErrInvalidWindow = errors.New("invalid list window")

// Window 一次分页请求
type Window struct {
	Limit  int
	Offset int
}

// ValidateWindow limit + offset 不超过 500，limit 至少为 1，offset 不小于 0
func ValidateWindow(limit, offset int) error {
	switch {
	case limit+offset > MaxListWindow:
		return fmt.Errorf("%w: no more than %d apps can be fetched", ErrInvalidWindow, MaxListWindow)
	case limit < 1:
		return fmt.Errorf("%w: limit cannot be less than one", ErrInvalidWindow)
	case offset < 0:
		return fmt.Errorf("%w: offset cannot be less than zero", ErrInvalidWindow)
	}
	return nil
}

// PageWindows 把 (limit, offset) 拆成每页不超过 100 的请求序列
func PageWindows(limit, offset int) []Window {
	windows := make([]Window, 0, limit/PageSize+1)
	for limit > PageSize {
		windows = append(windows, Window{Limit: PageSize, Offset: offset})
		offset += PageSize
		limit -= PageSize
	}
	return append(windows, Window{Limit: limit, Offset: offset})
}
