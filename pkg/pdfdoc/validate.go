package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pdf-rag-go/pkg/hasher"
)

// headerWindow 是查找 "%PDF-" 文件头的字节范围，部分生成器会在文件头前写入少量垃圾字节。
const headerWindow = 1024

var (
	ErrNotPDF         = errors.New("不是 PDF 文件")
	ErrPageOutOfRange = errors.New("页码超出范围")
	ErrClosed         = errors.New("文档已关闭")
)

// ValidationError 表示文件在处理开始前就被拒绝（非 PDF、不存在、不可读、为空）。
type ValidationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("文件校验失败 %s: %s", filepath.Base(e.Path), e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError 判断错误链中是否包含 *ValidationError。
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateName 只检查文件名后缀，用于在写入临时文件之前拒绝明显不是 PDF 的上传。
func ValidateName(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return &ValidationError{Path: name, Reason: "文件扩展名必须是 .pdf", Err: ErrNotPDF}
	}
	return nil
}

// Validate 检查路径指向一个存在、可读、非空且带有 PDF 文件头的普通文件。
func Validate(path string) error {
	if err := ValidateName(path); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		reason := "无法访问文件"
		switch {
		case errors.Is(err, os.ErrNotExist):
			reason = "文件不存在"
		case errors.Is(err, os.ErrPermission):
			reason = "没有读取权限"
		}
		return &ValidationError{Path: path, Reason: reason, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &ValidationError{Path: path, Reason: "不是普通文件", Err: ErrNotPDF}
	}
	if info.Size() == 0 {
		return &ValidationError{Path: path, Reason: "文件为空", Err: hasher.ErrEmptyFile}
	}

	f, err := os.Open(path)
	if err != nil {
		reason := "无法打开文件"
		if errors.Is(err, os.ErrPermission) {
			reason = "没有读取权限"
		}
		return &ValidationError{Path: path, Reason: reason, Err: err}
	}
	defer f.Close()

	head := make([]byte, headerWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return &ValidationError{Path: path, Reason: "读取文件失败", Err: err}
	}
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return &ValidationError{Path: path, Reason: "缺少 PDF 文件头", Err: ErrNotPDF}
	}
	return nil
}
