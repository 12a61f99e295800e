package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"drive-agent-backend/service/scan"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Workspace原生文档没有字节内容，下载前导出为对应的文本格式
var exportMimeTypes = map[string]string{
	"application/vnd.google-apps.document":     "text/plain",
	"application/vnd.google-apps.spreadsheet":  "text/csv",
	"application/vnd.google-apps.presentation": "text/plain",
}

const listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, size, md5Checksum, version)"

// DriveProvider 以只读服务账号访问Google Drive的受监控目录
type DriveProvider struct {
	svc *drive.Service
}

func NewDriveProvider(ctx context.Context, credentialsFile string) (*DriveProvider, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %v", err)
	}
	return &DriveProvider{svc: svc}, nil
}

func (p *DriveProvider) List(ctx context.Context, folderRef string, recursive bool) ([]scan.FileMetadata, error) {
	return p.listFolder(ctx, folderRef, "", recursive)
}

func (p *DriveProvider) listFolder(ctx context.Context, folderID, prefix string, recursive bool) ([]scan.FileMetadata, error) {
	var (
		metas     []scan.FileMetadata
		pageToken string
	)

	for {
		call := p.svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields(listFields).
			PageSize(1000).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, classifyDriveError(fmt.Errorf("failed to list folder %s: %v", folderID, err), err)
		}

		for _, f := range res.Files {
			if f.MimeType == folderMimeType {
				if !recursive {
					continue
				}
				children, err := p.listFolder(ctx, f.Id, prefix+f.Name+"/", recursive)
				if err != nil {
					return nil, err
				}
				metas = append(metas, children...)
				continue
			}

			modifiedAt, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			metas = append(metas, scan.FileMetadata{
				FileID:      f.Id,
				Path:        prefix + f.Name,
				MimeType:    f.MimeType,
				Revision:    strconv.FormatInt(f.Version, 10),
				Size:        f.Size,
				ModifiedAt:  modifiedAt,
				ContentHash: f.Md5Checksum,
			})
		}

		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return metas, nil
}

func (p *DriveProvider) Fetch(ctx context.Context, fileID string) ([]byte, string, error) {
	meta, err := p.svc.Files.Get(fileID).Fields("id, mimeType").Context(ctx).Do()
	if err != nil {
		return nil, "", classifyDriveError(fmt.Errorf("failed to get file %s: %v", fileID, err), err)
	}

	var res io.ReadCloser
	mimeType := meta.MimeType

	if exportMime, ok := exportMimeTypes[meta.MimeType]; ok {
		resp, err := p.svc.Files.Export(fileID, exportMime).Context(ctx).Download()
		if err != nil {
			return nil, "", classifyDriveError(fmt.Errorf("failed to export file %s: %v", fileID, err), err)
		}
		res = resp.Body
		mimeType = exportMime
	} else {
		resp, err := p.svc.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return nil, "", classifyDriveError(fmt.Errorf("failed to download file %s: %v", fileID, err), err)
		}
		res = resp.Body
	}
	defer res.Close()

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, "", scan.Transient(fmt.Errorf("failed to read file %s: %v", fileID, err))
	}

	return data, mimeType, nil
}

// classifyDriveError 404与权限错误重试无意义，限流与服务端错误可重试
func classifyDriveError(wrapped, cause error) error {
	var apiErr *googleapi.Error
	if !errors.As(cause, &apiErr) {
		return scan.Transient(wrapped)
	}

	switch {
	case apiErr.Code == 404:
		return scan.Permanent(wrapped)
	case apiErr.Code == 403:
		for _, e := range apiErr.Errors {
			if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
				return scan.Transient(wrapped)
			}
		}
		return scan.Permanent(wrapped)
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return scan.Transient(wrapped)
	default:
		return scan.Permanent(wrapped)
	}
}
