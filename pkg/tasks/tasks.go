// Package tasks 定义了发送到 Kafka 的异步任务结构。
package tasks

// IngestionTask 表示一个异步入库任务。文件已经按内容指纹保存在 Path。
type IngestionTask struct {
	DocHash  string `json:"doc_hash"`
	Path     string `json:"path"`
	FileName string `json:"file_name"`
}
