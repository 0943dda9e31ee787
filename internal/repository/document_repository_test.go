package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdf-rag-go/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库按连接隔离，只保留一个连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Document{}))
	return db
}

func hashOf(c string) string { return strings.Repeat(c, 64) }

func TestCreateIfAbsentAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	doc := &model.Document{
		DocHash:    hashOf("a"),
		Filename:   "informe.pdf",
		UploadPath: "data/" + hashOf("a") + ".pdf",
		TotalPages: 3,
		Metadata:   model.EncodeMetadata(map[string]string{"title": "Informe"}),
	}
	inserted, err := repo.CreateIfAbsent(ctx, doc)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, doc.ID)

	got, err := repo.FindByHash(ctx, hashOf("a"))
	require.NoError(t, err)
	assert.Equal(t, "informe.pdf", got.Filename)
	assert.Equal(t, 3, got.TotalPages)
	assert.False(t, got.Indexed)
	assert.Equal(t, map[string]string{"title": "Informe"}, got.MetadataMap())

	// 同一指纹再次插入不产生第二条记录，并读回已有记录
	dup := &model.Document{DocHash: hashOf("a"), Filename: "copia.pdf", UploadPath: "otra/ruta.pdf"}
	inserted, err = repo.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, doc.ID, dup.ID)
	assert.Equal(t, "informe.pdf", dup.Filename)

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestFindByHashNotFound(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	_, err := repo.FindByHash(context.Background(), hashOf("f"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestFindByHashes(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	for _, c := range []string{"a", "b", "c"} {
		_, err := repo.CreateIfAbsent(ctx, &model.Document{DocHash: hashOf(c), Filename: c + ".pdf", UploadPath: c})
		require.NoError(t, err)
	}

	got, err := repo.FindByHashes(ctx, []string{hashOf("a"), hashOf("c"), hashOf("z")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.pdf", got[hashOf("a")].Filename)
	assert.Equal(t, "c.pdf", got[hashOf("c")].Filename)

	empty, err := repo.FindByHashes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdatePathAndMarkIndexed(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	_, err := repo.CreateIfAbsent(ctx, &model.Document{DocHash: hashOf("d"), Filename: "d.pdf", UploadPath: "old.pdf"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdatePath(ctx, hashOf("d"), "new.pdf"))
	require.NoError(t, repo.MarkIndexed(ctx, hashOf("d")))
	require.NoError(t, repo.MarkIndexed(ctx, hashOf("d")))

	got, err := repo.FindByHash(ctx, hashOf("d"))
	require.NoError(t, err)
	assert.Equal(t, "new.pdf", got.UploadPath)
	assert.True(t, got.Indexed)

	// CreateIfAbsent 不会把已索引的记录改回未索引
	again := &model.Document{DocHash: hashOf("d"), Filename: "d.pdf", UploadPath: "x"}
	_, err = repo.CreateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.True(t, again.Indexed)
}
