// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Storage       StorageConfig       `mapstructure:"storage"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Vector        VectorConfig        `mapstructure:"vector"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Render        RenderConfig        `mapstructure:"render"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Context       ContextConfig       `mapstructure:"context"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制 multipart 上传在内存中缓存的大小。
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL / MariaDB 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StorageConfig 决定 PDF 原件与页面渲染图的存放位置。
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // local 或 minio
	DataDir string `mapstructure:"data_dir"`
	TempDir string `mapstructure:"temp_dir"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// VectorConfig 选择向量库后端。
type VectorConfig struct {
	Backend    string `mapstructure:"backend"` // elasticsearch 或 qdrant
	Collection string `mapstructure:"collection"`
	Dims       int    `mapstructure:"dims"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// QdrantConfig 存储 Qdrant gRPC 连接配置。
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// EmbeddingConfig 存储多向量 Embedding 模型服务的配置。
type EmbeddingConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RenderConfig 控制页面栅格化参数。
type RenderConfig struct {
	DPI float64 `mapstructure:"dpi"`
}

// IngestionConfig 控制入库流程。
type IngestionConfig struct {
	SignatureSamplePages int    `mapstructure:"signature_sample_pages"`
	LockBackend          string `mapstructure:"lock_backend"` // memory 或 redis
	LockTTLSeconds       int    `mapstructure:"lock_ttl_seconds"`
	// SeedDir 中的 PDF 会在启动时自动入库，目录不存在时跳过。
	SeedDir string `mapstructure:"seed_dir"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置，为空时使用 PDF 自带的元数据。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ContextConfig 对应上下文拼装的字符预算。
type ContextConfig struct {
	MaxChars        int `mapstructure:"max_chars"`
	MaxTableChars   int `mapstructure:"max_table_chars"`
	MaxCaptionChars int `mapstructure:"max_caption_chars"`
	MaxTextChars    int `mapstructure:"max_text_chars"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.temp_dir", "./temp")
	v.SetDefault("vector.backend", "elasticsearch")
	v.SetDefault("vector.collection", "documents")
	v.SetDefault("vector.dims", 128)
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("embedding.model", "vidore/colpali-v1.3")
	v.SetDefault("embedding.timeout_seconds", 120)
	v.SetDefault("render.dpi", 300)
	v.SetDefault("ingestion.signature_sample_pages", 12)
	v.SetDefault("ingestion.lock_backend", "memory")
	v.SetDefault("ingestion.lock_ttl_seconds", 900)
	v.SetDefault("ingestion.seed_dir", "initfile")
	v.SetDefault("kafka.group_id", "pdf-rag-go-consumer")
	v.SetDefault("context.max_chars", 9000)
	v.SetDefault("context.max_table_chars", 3500)
	v.SetDefault("context.max_caption_chars", 1200)
	v.SetDefault("context.max_text_chars", 6500)
}

// Load 从指定路径读取 YAML 配置，环境变量（如 DATABASE_MYSQL_DSN）可以覆盖文件中的值。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

// Init 初始化配置加载，并将结果写入全局变量 Conf；失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
