package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"drive-agent-backend/dao"
	"drive-agent-backend/model"
	"drive-agent-backend/request"
	"drive-agent-backend/response"
	"drive-agent-backend/service/scan"
	"drive-agent-backend/utils"

	"github.com/gin-gonic/gin"
)

const defaultScanRunsLimit = 50

// TriggerScan 手动触发一次扫描；扫描异步执行，通过run_id查询进度
func TriggerScan(c *gin.Context) {
	var req request.TriggerScanRequest
	// 请求体可以为空
	_ = c.ShouldBindJSON(&req)

	trigger := req.Trigger
	if trigger == "" {
		trigger = "api"
	}

	runID, err := scan.OrchestratorInstance.RunAsync(trigger)
	if err != nil {
		if errors.Is(err, scan.ErrScanLockHeld) {
			c.AbortWithStatusJSON(http.StatusConflict, response.Response{
				Msg: ErrScanInProgress.Error(),
			})
			return
		}
		slog.Error(ErrTriggerScan.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrTriggerScan.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, response.Response{
		Data: response.TriggerScanResponse{
			RunID: runID,
		},
	})
}

func GetScanRuns(c *gin.Context) {
	runs, err := dao.GetScanRuns(defaultScanRunsLimit)
	if err != nil {
		slog.Error(ErrGetScanRuns.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetScanRuns.Error(),
		})
		return
	}

	var resp response.GetScanRunsResponse
	for _, run := range runs {
		resp.Runs = append(resp.Runs, scanRunResponse(run))
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func GetScanRun(c *gin.Context) {
	runID := c.Param("id")
	run, err := dao.GetScanRunByRunID(runID)
	if err != nil {
		slog.Error(ErrGetScanRuns.Error(), "run_id", runID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetScanRuns.Error(),
		})
		return
	}
	if run == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: ErrScanRunNotFound.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: scanRunResponse(*run),
	})
}

// ScanProgress 以SSE推送指定扫描的进度事件，扫描结束后关闭流
func ScanProgress(c *gin.Context) {
	runID := c.Param("id")

	events, cancel := scan.OrchestratorInstance.Progress.Subscribe()
	defer cancel()

	utils.SetSSEHeaders(c)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.RunID != runID {
				continue
			}

			utils.SendSSEMessage(c, utils.EventScanProgress, ev)

			if ev.Stage == "finalized" {
				utils.SendSSEMessage(c, utils.EventDone, "")
				return
			}
		}
	}
}

func scanRunResponse(run model.ScanRun) response.ScanRunResponse {
	return response.ScanRunResponse{
		RunID:           run.RunID,
		State:           string(run.State),
		Trigger:         run.Trigger,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Processed:       run.Processed,
		Unchanged:       run.Unchanged,
		Deleted:         run.Deleted,
		FailedPermanent: run.FailedPermanent,
		FailedRetryable: run.FailedRetryable,
		LastError:       run.LastError,
	}
}
