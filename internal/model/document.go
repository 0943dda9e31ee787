// Package model 定义了与数据库表对应的 Go 结构体以及向量库中的页面载荷。
package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Document 对应于数据库中的 documents 表。
// 每个内容指纹只有一行记录：同样字节的两次上传总是解析到同一条记录，与文件名和上传时间无关。
type Document struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	DocHash    string         `gorm:"type:varchar(64);uniqueIndex;not null;column:doc_hash" json:"docHash"`
	Filename   string         `gorm:"type:varchar(255);not null" json:"filename"`
	UploadPath string         `gorm:"type:varchar(512);not null;column:upload_path" json:"uploadPath"`
	TotalPages int            `gorm:"not null;default:0;column:total_pages" json:"totalPages"`
	Indexed    bool           `gorm:"not null;default:false" json:"indexed"` // 只允许 false -> true
	Metadata   datatypes.JSON `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// MetadataMap 将 JSON 元数据列解码为字符串映射，解析失败或为空时返回 nil。
func (d *Document) MetadataMap() map[string]string {
	if len(d.Metadata) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(d.Metadata, &m); err != nil {
		return nil
	}
	return m
}

// EncodeMetadata 将元数据编码为 JSON 列的值，空映射编码为 NULL。
func EncodeMetadata(m map[string]string) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// DocumentDTO 是返回给前端的文档信息。
type DocumentDTO struct {
	ID         uint              `json:"id"`
	DocHash    string            `json:"docHash"`
	Filename   string            `json:"filename"`
	TotalPages int               `json:"totalPages"`
	Indexed    bool              `json:"indexed"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  LocalTime         `json:"createdAt"`
}

// ToDTO 将数据库记录转换为 DTO。
func (d *Document) ToDTO() DocumentDTO {
	return DocumentDTO{
		ID:         d.ID,
		DocHash:    d.DocHash,
		Filename:   d.Filename,
		TotalPages: d.TotalPages,
		Indexed:    d.Indexed,
		Metadata:   d.MetadataMap(),
		CreatedAt:  LocalTime(d.CreatedAt),
	}
}
