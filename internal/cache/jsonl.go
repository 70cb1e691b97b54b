// Package cache 以 JSONL 导出/导入应用库，一行一个应用
package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/repository"
)

// Reader 流式 JSONL 读取器
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
	lineNum int
}

// NewReader 打开 JSONL 文件
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(file)
	// 单行最大 10MB
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	return &Reader{file: file, scanner: scanner}, nil
}

// Next 读取下一个应用，结束时返回 io.EOF；空行跳过
func (r *Reader) Next() (*domain.AppRecord, error) {
	for r.scanner.Scan() {
		r.lineNum++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var app domain.AppRecord
		if err := json.Unmarshal(line, &app); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		if app.ID == "" {
			return nil, fmt.Errorf("line %d: missing app id", r.lineNum)
		}
		return &app, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// LineNumber 当前行号
func (r *Reader) LineNumber() int {
	return r.lineNum
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// Writer 流式 JSONL 写入器，覆盖已有文件
type Writer struct {
	file   *os.File
	writer *bufio.Writer
}

// NewWriter 创建文件（及其目录）
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{file: file, writer: bufio.NewWriterSize(file, 64*1024)}, nil
}

// Write 写入一行
func (w *Writer) Write(app *domain.AppRecord) error {
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	return w.writer.WriteByte('\n')
}

func (w *Writer) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Export 把全部应用写入 path，返回写入数量
func Export(ctx context.Context, apps repository.AppRepository, path string) (int, error) {
	records, err := apps.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load apps: %w", err)
	}

	w, err := NewWriter(path)
	if err != nil {
		return 0, fmt.Errorf("create cache file: %w", err)
	}
	for _, app := range records {
		if err := w.Write(app); err != nil {
			w.Close()
			return 0, fmt.Errorf("write %s: %w", app.ID, err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Import 读取 path 中的应用写入应用库；已分析的应用同时恢复分析结果
func Import(ctx context.Context, apps repository.AppRepository, path string) (int, error) {
	r, err := NewReader(path)
	if err != nil {
		return 0, fmt.Errorf("open cache file: %w", err)
	}
	defer r.Close()

	n := 0
	for {
		app, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}

		if err := apps.Upsert(ctx, app); err != nil {
			return n, fmt.Errorf("import %s: %w", app.ID, err)
		}
		if app.Analyzed {
			if err := apps.SaveFindings(ctx, app.ID, app.Findings); err != nil {
				return n, fmt.Errorf("import findings of %s: %w", app.ID, err)
			}
		} else if app.AnalysisError != "" {
			if err := apps.MarkFailed(ctx, app.ID, app.AnalysisError); err != nil {
				return n, fmt.Errorf("import failure of %s: %w", app.ID, err)
			}
		}
		n++
	}
}
