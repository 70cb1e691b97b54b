package stats

import (
	"testing"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

func analyzedApp(id string, f domain.Findings) *domain.AppRecord {
	return &domain.AppRecord{
		ID:               id,
		RequiresInternet: true,
		Analyzed:         true,
		Findings:         f,
	}
}

// TestAccumulator_NonInternet 测试无需网络的应用只增加 Total
func TestAccumulator_NonInternet(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge(&domain.AppRecord{
		ID:       "offline",
		Analyzed: true,
		Findings: domain.Findings{InsecureFactories: 1, TrustManagers: 2},
	})

	assert.Equal(t, Accumulator{Total: 1}, *acc)
}

// TestAccumulator_Unchecked 测试未分析的应用计入 unchecked
func TestAccumulator_Unchecked(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge(&domain.AppRecord{ID: "pending", RequiresInternet: true})

	assert.Equal(t, 1, acc.Total)
	assert.Equal(t, 1, acc.Internet)
	assert.Equal(t, 1, acc.Unchecked)
	assert.Equal(t, 0, acc.Classified())
	assert.Equal(t, 0, acc.Checked())
}

// TestAccumulator_AtLeastOne 测试 finding 计数只按是否出现累加
func TestAccumulator_AtLeastOne(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge(analyzedApp("a", domain.Findings{TrustManagers: 7, NaiveTrustManagers: 3, SSLErrorHandlers: 2}))
	acc.Merge(analyzedApp("b", domain.Findings{TrustManagers: 1}))

	assert.Equal(t, 2, acc.TrustManagers)
	assert.Equal(t, 1, acc.NaiveTrustManagers)
	assert.Equal(t, 1, acc.SSLErrorHandlers)
	assert.Equal(t, 0, acc.InsecureFactories)
	assert.Equal(t, 1, acc.Naive)
	assert.Equal(t, 1, acc.Custom)
}

// TestAccumulator_Conservation 测试 native+custom+naive+bad+unchecked == internet
func TestAccumulator_Conservation(t *testing.T) {
	apps := []*domain.AppRecord{
		analyzedApp("n", domain.Findings{}),
		analyzedApp("c", domain.Findings{HostnameVerifiers: 1}),
		analyzedApp("v", domain.Findings{NaiveHostnameVerifiers: 1}),
		analyzedApp("b", domain.Findings{AllowAllHostnameVerifiers: 1}),
		{ID: "u", RequiresInternet: true},
		{ID: "o"},
	}

	acc := NewAccumulator()
	for _, app := range apps {
		before := acc.Classified()
		acc.Merge(app)
		// 每次合并最多增加一个分类
		assert.LessOrEqual(t, acc.Classified()-before, 1)
	}

	assert.Equal(t, 6, acc.Total)
	assert.Equal(t, 5, acc.Internet)
	assert.Equal(t, acc.Internet, acc.Classified()+acc.Unchecked)
	for _, c := range domain.Classifications {
		assert.Equal(t, 1, acc.Count(c), string(c))
	}
	assert.Equal(t, 4, acc.Checked())
}
