package model

// IngestStatus 是单个文件的入库状态。
type IngestStatus string

const (
	StatusIngested         IngestStatus = "ingested"
	StatusAlreadyProcessed IngestStatus = "already_processed"
	StatusQueued           IngestStatus = "queued"
	StatusError            IngestStatus = "error"
)

// IngestResult 是单个文件的入库结果。
type IngestResult struct {
	Filename       string       `json:"filename,omitempty"`
	Status         IngestStatus `json:"status"`
	Hash           string       `json:"hash,omitempty"`
	Message        string       `json:"message"`
	ProcessingTime string       `json:"processing_time,omitempty"`
}

// BatchIngestResponse 是批量上传的整体响应。
type BatchIngestResponse struct {
	TotalProcessingTime string         `json:"total_processing_time"`
	Results             []IngestResult `json:"results"`
}
