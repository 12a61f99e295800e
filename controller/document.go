package controller

import (
	"log/slog"
	"net/http"

	"drive-agent-backend/dao"
	"drive-agent-backend/response"

	"github.com/gin-gonic/gin"
)

// GetDocuments 返回所有被监控文档及其最近一次处理的状态
func GetDocuments(c *gin.Context) {
	records, err := dao.GetFileRecords()
	if err != nil {
		slog.Error(ErrGetDocuments.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetDocuments.Error(),
		})
		return
	}

	latest, err := dao.GetLatestProcessingRecords()
	if err != nil {
		slog.Error(ErrGetDocuments.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetDocuments.Error(),
		})
		return
	}

	var resp response.GetDocumentsResponse
	for _, rec := range records {
		doc := response.DocumentResponse{
			FileID:     rec.FileID,
			Path:       rec.Path,
			MimeType:   rec.MimeType,
			Size:       rec.Size,
			ModifiedAt: rec.ModifiedAt,
			FileStatus: string(rec.Status),
			LastSeenAt: rec.LastSeenAt,
		}
		if proc, ok := latest[rec.FileID]; ok {
			doc.ProcessingStatus = string(proc.Status)
			doc.Summary = proc.Summary
		}
		resp.Documents = append(resp.Documents, doc)
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

// GetFailedDocuments 返回停在FAILED状态的文档，便于人工排查
func GetFailedDocuments(c *gin.Context) {
	failed, err := dao.GetFailedProcessingRecords()
	if err != nil {
		slog.Error(ErrGetFailedDocuments.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetFailedDocuments.Error(),
		})
		return
	}

	var resp response.GetFailedDocumentsResponse
	for _, rec := range failed {
		resp.Documents = append(resp.Documents, response.FailedDocumentResponse{
			FileID:           rec.FileID,
			ProcessedVersion: rec.ProcessedVersion,
			AttemptCount:     rec.AttemptCount,
			LastAttemptAt:    rec.LastAttemptAt,
			LastError:        rec.LastError,
			Permanent:        rec.Permanent,
		})
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

// GetDocumentRecords 返回单个文档的全部处理历史，最新在前
func GetDocumentRecords(c *gin.Context) {
	fileID := c.Param("file_id")

	records, err := dao.GetProcessingRecordsByFileID(fileID)
	if err != nil {
		slog.Error(ErrGetDocumentRecords.Error(), "file_id", fileID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetDocumentRecords.Error(),
		})
		return
	}

	resp := response.GetProcessingRecordsResponse{
		FileID: fileID,
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, response.ProcessingRecordResponse{
			ProcessedVersion: rec.ProcessedVersion,
			Status:           string(rec.Status),
			Summary:          rec.Summary,
			ActionItems:      rec.ActionItems,
			IndexEntryID:     rec.IndexEntryID,
			CreatedEventIDs:  rec.CreatedEventIDs,
			AttemptCount:     rec.AttemptCount,
			LastAttemptAt:    rec.LastAttemptAt,
			LastError:        rec.LastError,
			Permanent:        rec.Permanent,
		})
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}
