package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPageWindows 测试分页拆分
func TestPageWindows(t *testing.T) {
	tests := []struct {
		limit, offset int
		expected      []Window
	}{
		{50, 0, []Window{{50, 0}}},
		{100, 0, []Window{{100, 0}}},
		{250, 0, []Window{{100, 0}, {100, 100}, {50, 200}}},
		{500, 0, []Window{{100, 0}, {100, 100}, {100, 200}, {100, 300}, {100, 400}}},
		{150, 30, []Window{{100, 30}, {50, 130}}},
	}

	for _, tt := range tests {
		windows := PageWindows(tt.limit, tt.offset)
		assert.Equal(t, tt.expected, windows, "limit=%d offset=%d", tt.limit, tt.offset)

		total := 0
		for _, w := range windows {
			assert.LessOrEqual(t, w.Limit, PageSize)
			total += w.Limit
		}
		assert.Equal(t, tt.limit, total)
	}
}

// TestValidateWindow 测试抓取范围校验
func TestValidateWindow(t *testing.T) {
	assert.NoError(t, ValidateWindow(500, 0))
	assert.NoError(t, ValidateWindow(1, 499))

	for _, w := range []Window{{501, 0}, {400, 101}, {0, 0}, {10, -1}} {
		err := ValidateWindow(w.Limit, w.Offset)
		assert.ErrorIs(t, err, ErrInvalidWindow, "window %+v", w)
	}
	assert.Contains(t, ValidateWindow(0, 0).Error(), "limit cannot be less than one")
	assert.Contains(t, ValidateWindow(5, -1).Error(), "offset cannot be less than zero")
}
