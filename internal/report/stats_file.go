package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apk-analysis/hermes-go/internal/stats"
)

// WriteStats 把统计快照保存为 JSON（stats.json）
func WriteStats(path string, snap *stats.Snapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create stats dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadStats 读取之前保存的统计快照
func ReadStats(path string) (*stats.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap stats.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse stats file %s: %w", path, err)
	}
	return &snap, nil
}
