package stats

import "github.com/apk-analysis/hermes-go/internal/domain"

// HasBypass 是否存在直接绕过证书/主机名校验的代码
func HasBypass(f domain.Findings) bool {
	return f.InsecureFactories > 0 || f.AllowAllHostnameVerifiers > 0
}

// HasNaiveVerification 是否存在空实现的 TrustManager / HostnameVerifier
func HasNaiveVerification(f domain.Findings) bool {
	return f.NaiveTrustManagers > 0 || f.NaiveHostnameVerifiers > 0
}

// HasCustomVerification 是否存在自定义的 TrustManager / HostnameVerifier
func HasCustomVerification(f domain.Findings) bool {
	return f.TrustManagers > 0 || f.HostnameVerifiers > 0
}

// IsNative 没有自定义校验也没有绕过
func IsNative(f domain.Findings) bool {
	return !HasCustomVerification(f) && !HasBypass(f)
}

// ClassifyFindings 按 bad -> naive -> custom -> native 的优先级分类
func ClassifyFindings(f domain.Findings) domain.Classification {
	switch {
	case HasBypass(f):
		return domain.ClassBad
	case HasNaiveVerification(f):
		return domain.ClassNaive
	case HasCustomVerification(f):
		return domain.ClassCustom
	default:
		return domain.ClassNative
	}
}

// Classify 对已分析的应用分类；未分析的应用没有分类
func Classify(app *domain.AppRecord) (domain.Classification, bool) {
	f, ok := app.Analysis()
	if !ok {
		return "", false
	}
	return ClassifyFindings(f), true
}
