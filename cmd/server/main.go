// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/internal/handler"
	"pdf-rag-go/internal/llmcontext"
	"pdf-rag-go/internal/pipeline"
	"pdf-rag-go/internal/repository"
	"pdf-rag-go/internal/service"
	"pdf-rag-go/pkg/database"
	"pdf-rag-go/pkg/embedding"
	"pdf-rag-go/pkg/es"
	"pdf-rag-go/pkg/kafka"
	"pdf-rag-go/pkg/llm"
	"pdf-rag-go/pkg/lock"
	"pdf-rag-go/pkg/log"
	"pdf-rag-go/pkg/qdrant"
	"pdf-rag-go/pkg/storage"
	"pdf-rag-go/pkg/tika"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("PDF_RAG_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 初始化数据库，Redis 只在分布式锁或 Kafka 需要时连接
	database.InitMySQL(cfg.Database.MySQL.DSN)
	defer database.CloseMySQL()
	var rdb *redis.Client
	if cfg.Ingestion.LockBackend == "redis" || cfg.Kafka.Enabled {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		rdb = database.RDB
		defer rdb.Close()
	}

	// 4. 文件存储：PDF 原件始终保存在本地（渲染器需要文件路径），页面渲染图按配置保存
	files, err := storage.NewLocalStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatal("初始化数据目录失败", err)
	}
	var artifacts storage.ArtifactStore = files
	var archive storage.ArtifactStore
	if cfg.Storage.Backend == "minio" {
		store, err := storage.InitMinIO(rootCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("初始化 MinIO 失败", err)
		}
		artifacts = store
		archive = store
	}

	// 5. 向量库
	vectors, err := newVectorRepository(cfg)
	if err != nil {
		log.Fatal("初始化向量库失败", err)
	}
	if err := vectors.EnsureCollection(rootCtx); err != nil {
		log.Fatal("创建向量集合失败", err)
	}

	// 6. 加载 Embedding 模型（只加载一次）
	model, err := embedding.Load(rootCtx, cfg.Embedding)
	if err != nil {
		log.Fatal("加载 Embedding 模型失败", err)
	}
	defer func() {
		if err := model.Close(); err != nil {
			log.Warnf("关闭 Embedding 模型失败: %v", err)
		}
	}()

	// 7. 初始化 Repository 与 Service (依赖注入)
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Ingestion.LockBackend == "redis" {
		locker = lock.NewRedisLocker(rdb, "lock:ingest:", time.Duration(cfg.Ingestion.LockTTLSeconds)*time.Second)
	}
	docRepo := repository.NewDocumentRepository(database.DB)
	coordinator := pipeline.NewCoordinator(docRepo, vectors, artifacts, model, locker, cfg.Ingestion.SignatureSamplePages)

	ingestOpts := service.IngestOptions{
		TempDir: cfg.Storage.TempDir,
		DPI:     cfg.Render.DPI,
		Archive: archive,
		Tika:    tika.NewClient(cfg.Tika),
	}
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
		defer func() {
			if err := kafka.CloseProducer(); err != nil {
				log.Warnf("关闭 Kafka 生产者失败: %v", err)
			}
		}()
		ingestOpts.Publish = kafka.ProduceIngestionTask
	}
	ingestService := service.NewIngestService(coordinator, files, ingestOpts)
	searchService := service.NewSearchService(model, vectors, docRepo, llmcontext.Limits{
		MaxChars:        cfg.Context.MaxChars,
		MaxTableChars:   cfg.Context.MaxTableChars,
		MaxCaptionChars: cfg.Context.MaxCaptionChars,
		MaxTextChars:    cfg.Context.MaxTextChars,
	})
	askService := service.NewAskService(searchService, llm.NewClient(cfg.LLM), cfg.LLM)
	documentService := service.NewDocumentService(docRepo)

	// 8. 启动后台 Kafka 消费者
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(ingestService, rdb)
		go func() {
			if err := consumer.Run(rootCtx, cfg.Kafka); err != nil {
				log.Errorf("Kafka 消费者退出: %v", err)
			}
		}()
	}

	// 8.1 导入 seed 目录中的 PDF，已入库的文件会被跳过
	go initSeedFiles(rootCtx, cfg.Ingestion.SeedDir, ingestService)

	// 9. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Handlers{
		Documents: handler.NewDocumentHandler(ingestService, documentService),
		Search:    handler.NewSearchHandler(searchService),
		Ask:       handler.NewAskHandler(askService),
		Health: handler.HealthInfo{
			Model:          model.Name(),
			Device:         model.Device(),
			VectorBackend:  vectors.Backend(),
			StorageBackend: artifacts.Backend(),
			LockBackend:    cfg.Ingestion.LockBackend,
			AsyncIngestion: cfg.Kafka.Enabled,
		},
	}, cfg.Server.MaxUploadMB)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

func newVectorRepository(cfg config.Config) (repository.PageVectorRepository, error) {
	switch cfg.Vector.Backend {
	case "elasticsearch", "":
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			return nil, err
		}
		return repository.NewESPageVectorRepository(es.ESClient, cfg.Vector.Collection, cfg.Vector.Dims), nil
	case "qdrant":
		client, err := qdrant.NewClient(cfg.Qdrant)
		if err != nil {
			return nil, err
		}
		return repository.NewQdrantPageVectorRepository(client, cfg.Vector.Collection, cfg.Vector.Dims), nil
	case "memory":
		log.Warnf("使用内存向量库，数据不会持久化")
		return repository.NewMemoryPageVectorRepository(), nil
	default:
		return nil, fmt.Errorf("未知的向量库后端: %s", cfg.Vector.Backend)
	}
}

// initSeedFiles 扫描目录下的 PDF 并通过标准入库流程导入（幂等）。
func initSeedFiles(ctx context.Context, dir string, ingestService service.IngestService) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	var uploads []service.UploadFile
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		p := path
		uploads = append(uploads, service.UploadFile{
			Filename: info.Name(),
			Open:     func() (io.ReadCloser, error) { return os.Open(p) },
		})
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
	if len(uploads) == 0 {
		return
	}

	resp := ingestService.IngestBatch(ctx, uploads)
	for _, r := range resp.Results {
		log.Infof("initSeedFiles: %s -> %s %s", r.Filename, r.Status, r.Message)
	}
	log.Infof("initSeedFiles: 导入完成, 文件数: %d, 耗时: %ss", len(uploads), resp.TotalProcessingTime)
}
