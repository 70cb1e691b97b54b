package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/retry"
	"github.com/sirupsen/logrus"
)

// ScriptAnalyzer 调用外部 Python 检查脚本：python <script> <apk>，标准输出为 JSON 报告
type ScriptAnalyzer struct {
	pythonPath string
	scriptPath string
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewScriptAnalyzer 创建脚本分析器
func NewScriptAnalyzer(cfg config.AnalyzerConfig, logger *logrus.Logger) *ScriptAnalyzer {
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		pythonPath = "python"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &ScriptAnalyzer{
		pythonPath: pythonPath,
		scriptPath: cfg.ScriptPath,
		timeout:    timeout,
		logger:     logger,
	}
}

// Analyze 校验 APK 后运行脚本并解析报告
func (a *ScriptAnalyzer) Analyze(ctx context.Context, apkPath string) (*domain.Findings, error) {
	if err := ValidateAPK(apkPath); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, a.pythonPath, a.scriptPath, apkPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("analyzer timed out after %s: %w", a.timeout, ctx.Err())
		}
		// 脚本崩溃通常是 APK 本身的问题，重试无意义
		return nil, retry.NewNonRetryableError(
			fmt.Errorf("analyzer script failed: %w (stderr: %s)", err, truncate(stderr.String(), 512)))
	}

	report, err := ParseReport(output)
	if err != nil {
		return nil, retry.NewNonRetryableError(err)
	}

	findings := report.Findings()
	a.logger.WithFields(logrus.Fields{
		"apk":      apkPath,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("APK analyzed")

	return &findings, nil
}

// ParseReport 解析脚本输出
func ParseReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(bytes.TrimSpace(data), &r); err != nil {
		return nil, fmt.Errorf("failed to parse analyzer output: %w (output: %s)", err, truncate(string(data), 256))
	}
	return &r, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
