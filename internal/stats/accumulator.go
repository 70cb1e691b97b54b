package stats

import "github.com/apk-analysis/hermes-go/internal/domain"

// Accumulator 统计累加器，每个分组（分类/区间/总计）独立持有一个
type Accumulator struct {
	Total    int `json:"total"`
	Internet int `json:"internet"`

	// 至少包含一个该类代码的应用数
	TrustManagers             int `json:"trust_managers"`
	NaiveTrustManagers        int `json:"naive_trust_managers"`
	InsecureFactories         int `json:"insecure_factories"`
	HostnameVerifiers         int `json:"hostname_verifiers"`
	NaiveHostnameVerifiers    int `json:"naive_hostname_verifiers"`
	AllowAllHostnameVerifiers int `json:"allow_all_hostname_verifiers"`
	SSLErrorHandlers          int `json:"ssl_error_handlers"`

	// 互斥分类
	Unchecked int `json:"unchecked"`
	Native    int `json:"native"`
	Custom    int `json:"custom"`
	Naive     int `json:"naive"`
	Bad       int `json:"bad"`
}

// NewAccumulator 创建零值累加器
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Merge 合并一个应用；同一 (累加器, 应用) 只能调用一次
func (a *Accumulator) Merge(app *domain.AppRecord) {
	a.Total++

	// 不需要网络权限的应用只计入 Total
	if !app.RequiresInternet {
		return
	}
	a.Internet++

	f, analyzed := app.Analysis()
	a.TrustManagers += atLeastOne(f.TrustManagers)
	a.NaiveTrustManagers += atLeastOne(f.NaiveTrustManagers)
	a.InsecureFactories += atLeastOne(f.InsecureFactories)
	a.HostnameVerifiers += atLeastOne(f.HostnameVerifiers)
	a.NaiveHostnameVerifiers += atLeastOne(f.NaiveHostnameVerifiers)
	a.AllowAllHostnameVerifiers += atLeastOne(f.AllowAllHostnameVerifiers)
	a.SSLErrorHandlers += atLeastOne(f.SSLErrorHandlers)

	if !analyzed {
		a.Unchecked++
		return
	}

	switch ClassifyFindings(f) {
	case domain.ClassBad:
		a.Bad++
	case domain.ClassNaive:
		a.Naive++
	case domain.ClassCustom:
		a.Custom++
	default:
		a.Native++
	}
}

// Checked 已完成分析的网络应用数（百分比的分母）
func (a *Accumulator) Checked() int {
	return a.Internet - a.Unchecked
}

// Classified 四个分类之和
func (a *Accumulator) Classified() int {
	return a.Native + a.Custom + a.Naive + a.Bad
}

// Count 返回指定分类的计数
func (a *Accumulator) Count(c domain.Classification) int {
	switch c {
	case domain.ClassNative:
		return a.Native
	case domain.ClassCustom:
		return a.Custom
	case domain.ClassNaive:
		return a.Naive
	case domain.ClassBad:
		return a.Bad
	default:
		return 0
	}
}

func atLeastOne(n int) int {
	if n > 0 {
		return 1
	}
	return 0
}
