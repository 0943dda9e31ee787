// Package storage 保存入库过程中产生的文件：PDF 原件与页面渲染图。
package storage

import "context"

// 对象键前缀
const (
	PagesPrefix     = "pages/"
	DocumentsPrefix = "documents/"
)

// ArtifactStore 是按键保存文件的存储，键使用 "/" 分隔。
type ArtifactStore interface {
	Backend() string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutFile(ctx context.Context, key, path, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Location 返回对象的可读位置（本地路径或 s3:// 地址）。
	Location(key string) string
}
