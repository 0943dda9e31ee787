package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore 把文件保存在本地目录下。
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地存储，目录不存在时自动创建。
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录 %s 失败: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Backend() string { return "local" }

// Root 返回存储根目录。
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Location(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

// Put 先写临时文件再重命名，读者不会看到写了一半的文件。
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	dst := s.Location(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入 %s 失败: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("写入 %s 失败: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("保存 %s 失败: %w", key, err)
	}
	return nil
}

func (s *LocalStore) PutFile(ctx context.Context, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开 %s 失败: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return s.Put(ctx, key, data, contentType)
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.Location(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Adopt 把临时文件移动到 key 对应的位置。目标已存在时（同内容的文件）删除临时文件。
// 返回最终路径以及目标是否原本就存在。
func (s *LocalStore) Adopt(srcPath, key string) (string, bool, error) {
	dst := s.Location(key)
	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(srcPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return dst, true, fmt.Errorf("删除临时文件失败: %w", err)
		}
		return dst, true, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", false, fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.Rename(srcPath, dst); err != nil {
		return "", false, fmt.Errorf("移动文件到 %s 失败: %w", dst, err)
	}
	return dst, false, nil
}
