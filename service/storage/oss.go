package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"drive-agent-backend/config"
	"drive-agent-backend/service/scan"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
)

// OSSProvider 监控阿里云OSS存储桶的一个前缀，对象键即file_id
type OSSProvider struct {
	client *oss.Client
	bucket string
}

func NewOSSProvider() *OSSProvider {
	cfg := &oss.Config{
		Region: oss.Ptr(config.Cfg.Storage.OSS.Region),
		CredentialsProvider: credentials.NewStaticCredentialsProvider(
			config.Cfg.Storage.OSS.AccessKeyID,
			config.Cfg.Storage.OSS.AccessKeySecret,
		),
	}
	return &OSSProvider{
		client: oss.NewClient(cfg),
		bucket: config.Cfg.Storage.OSS.BucketName,
	}
}

func (p *OSSProvider) List(ctx context.Context, folderRef string, recursive bool) ([]scan.FileMetadata, error) {
	prefix := folderRef
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := p.client.NewListObjectsV2Paginator(&oss.ListObjectsV2Request{
		Bucket: oss.Ptr(p.bucket),
		Prefix: oss.Ptr(prefix),
	})

	var metas []scan.FileMetadata
	for paginator.HasNext() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, scan.Transient(fmt.Errorf("failed to list objects: %v", err))
		}

		for _, obj := range page.Contents {
			key := oss.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}

			rel := strings.TrimPrefix(key, prefix)
			if !recursive && strings.Contains(rel, "/") {
				continue
			}

			meta := scan.FileMetadata{
				FileID:      key,
				Path:        rel,
				MimeType:    mimeByExtension(key),
				ContentHash: strings.Trim(oss.ToString(obj.ETag), `"`),
				Size:        obj.Size,
			}
			if obj.LastModified != nil {
				meta.ModifiedAt = *obj.LastModified
			}
			metas = append(metas, meta)
		}
	}

	return metas, nil
}

func (p *OSSProvider) Fetch(ctx context.Context, fileID string) ([]byte, string, error) {
	result, err := p.client.GetObject(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(p.bucket),
		Key:    oss.Ptr(fileID),
	})
	if err != nil {
		var serr *oss.ServiceError
		if errors.As(err, &serr) && serr.StatusCode == 404 {
			return nil, "", scan.Permanent(fmt.Errorf("object %s not found: %v", fileID, err))
		}
		return nil, "", scan.Transient(fmt.Errorf("failed to get object %s: %v", fileID, err))
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", scan.Transient(fmt.Errorf("failed to read object %s: %v", fileID, err))
	}

	return data, mimeByExtension(fileID), nil
}

func mimeByExtension(key string) string {
	mt := mime.TypeByExtension(path.Ext(key))
	if mt == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(mt, ";"); idx > 0 {
		mt = mt[:idx]
	}
	return mt
}
