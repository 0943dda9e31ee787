// Package hasher 计算文件内容的 SHA-256 指纹，作为整个入库流程唯一的去重键。
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize 是流式读取的块大小 (64KB)，内存占用与文件大小无关。
const ChunkSize = 64 * 1024

// ErrEmptyFile 表示文件内容为空。
var ErrEmptyFile = errors.New("文件内容为空")

// Sum 以固定大小的块读取 r 的全部内容并返回小写十六进制的 SHA-256 摘要（64 个字符）。
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", fmt.Errorf("读取文件内容失败: %w", err)
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile 打开 path 并计算其内容指纹。
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()
	return Sum(f)
}

// IsValid 判断 s 是否是合法的内容指纹（64 位小写十六进制）。
func IsValid(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
