package progress

import (
	"fmt"
	"io"
	"sync"
)

// Func 进度回调：已完成数、总数、当前处理的条目
type Func func(done, total int, item string)

// Event 推送给客户端的进度事件
type Event struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Item  string `json:"item,omitempty"`
}

// Percent 完成百分比
func (e Event) Percent() float64 {
	if e.Total == 0 {
		return 0
	}
	return 100 * float64(e.Done) / float64(e.Total)
}

// Nop 不做任何事的回调
func Nop(int, int, string) {}

// Multi 把一次进度分发给多个回调，nil 会被跳过
func Multi(fns ...Func) Func {
	live := make([]Func, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	return func(done, total int, item string) {
		for _, fn := range live {
			fn(done, total, item)
		}
	}
}

// Console 在终端同一行刷新进度
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	label string
}

// NewConsole label 例如 "processing apps..."
func NewConsole(out io.Writer, label string) *Console {
	return &Console{out: out, label: label}
}

// Func 返回可以传给流水线的回调
func (c *Console) Func() Func {
	return func(done, total int, item string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		e := Event{Done: done, Total: total, Item: item}
		fmt.Fprintf(c.out, "\r%s %6.2f%% %10s: %s\033[K ", c.label, e.Percent(), "app", item)
	}
}

// Done 结束进度行
func (c *Console) Done(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\r%s\033[K\n", message)
}
