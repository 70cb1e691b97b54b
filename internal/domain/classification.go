package domain

// Classification 证书校验方式分类（互斥，四态）
type Classification string

const (
	ClassNative Classification = "native" // 未自定义校验
	ClassCustom Classification = "custom" // 自定义校验
	ClassNaive  Classification = "naive"  // 自定义校验但实现为空
	ClassBad    Classification = "bad"    // 直接绕过校验
)

// Classifications 固定输出顺序
var Classifications = []Classification{ClassNative, ClassCustom, ClassNaive, ClassBad}

// GetDisplayName 报表中使用的显示名称
func (c Classification) GetDisplayName() string {
	switch c {
	case ClassNative:
		return "Native"
	case ClassCustom:
		return "Custom"
	case ClassNaive:
		return "Naive"
	case ClassBad:
		return "Bad"
	default:
		return string(c)
	}
}

// GetColor 堆叠图中使用的颜色
func (c Classification) GetColor() string {
	switch c {
	case ClassNative:
		return "green"
	case ClassCustom:
		return "yellow"
	case ClassNaive:
		return "orange"
	case ClassBad:
		return "red"
	default:
		return "gray"
	}
}
