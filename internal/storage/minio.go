package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ats-agent-go/internal/config"
)

// MinIO 提供对象存储功能，保存候选人CV原始文件
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
	}

	// 确保CV存储桶存在
	if err := m.ensureBucketExists(context.Background(), cfg.CVBucket); err != nil {
		return nil, err
	}

	return m, nil
}

// ensureBucketExists 确保存储桶存在，不存在则创建
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在失败: %w", bucketName, err)
	}
	if !exists {
		err = m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: m.cfg.Location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		log.Printf("成功创建存储桶: %s", bucketName)
	}
	return nil
}

// UploadCVFile 上传候选人CV文件，边上传边计算MD5用于去重
// 返回对象键与文件内容的MD5十六进制串
func (m *MinIO) UploadCVFile(ctx context.Context, candidateID string, reader io.Reader, size int64, fileExt string) (string, string, error) {
	fileExt = strings.ToLower(strings.TrimPrefix(fileExt, "."))
	objectKey := fmt.Sprintf("cv/%s/original.%s", candidateID, fileExt)

	hasher := md5.New()
	teeReader := io.TeeReader(reader, hasher)

	_, err := m.client.PutObject(ctx, m.cfg.CVBucket, objectKey, teeReader, size, minio.PutObjectOptions{
		ContentType: contentTypeForExt(fileExt),
	})
	if err != nil {
		return "", "", fmt.Errorf("上传CV文件失败: %w", err)
	}

	md5Hex := hex.EncodeToString(hasher.Sum(nil))
	return objectKey, md5Hex, nil
}

// FetchCV 根据对象键获取CV文件内容流，调用方负责关闭
func (m *MinIO) FetchCV(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.cfg.CVBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取CV文件 %s 失败: %w", objectKey, err)
	}
	// GetObject是惰性的，需要Stat确认对象真实存在
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("CV文件 %s 不存在或不可读: %w", objectKey, err)
	}
	return obj, nil
}

// DeleteCVFile 删除CV文件
func (m *MinIO) DeleteCVFile(ctx context.Context, objectKey string) error {
	err := m.client.RemoveObject(ctx, m.cfg.CVBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除CV文件 %s 失败: %w", objectKey, err)
	}
	return nil
}

// contentTypeForExt 根据文件扩展名推断Content-Type
func contentTypeForExt(fileExt string) string {
	switch fileExt {
	case "pdf":
		return "application/pdf"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}
