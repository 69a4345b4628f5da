// Package intake 在分析开始前检查上传的账单文件
package intake

import (
	"strings"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
)

// DefaultMaxSize 5 MiB
const DefaultMaxSize int64 = 5 * 1024 * 1024

// File 候选文件的元数据，内容由调用方另行提供给分析服务
type File struct {
	Name    string
	Size    int64
	Content []byte
}

// Ext 文件名最后一个点之后的部分，小写；没有点时返回整个文件名
func (f *File) Ext() string {
	name := strings.ToLower(f.Name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Gate 入口校验
type Gate struct {
	maxSize    int64
	extensions map[string]struct{}
}

// NewGate 扩展名可带或不带前导点
func NewGate(maxSize int64, extensions []string) *Gate {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if len(extensions) == 0 {
		extensions = []string{"pdf", "csv"}
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return &Gate{maxSize: maxSize, extensions: exts}
}

// NewGateFromConfig 按上传配置创建
func NewGateFromConfig(cfg config.UploadConfig) *Gate {
	return NewGate(cfg.MaxSize, cfg.AllowedExtensions)
}

// Check 依次检查：文件存在、扩展名、大小。返回第一个失败的规则
func (g *Gate) Check(f *File) error {
	if f == nil || f.Name == "" {
		return errs.ErrMissingFile
	}

	if _, ok := g.extensions[f.Ext()]; !ok {
		return errs.ErrUnsupportedType
	}

	if f.Size > g.maxSize {
		return errs.ErrFileTooLarge
	}

	return nil
}
