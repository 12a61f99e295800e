package controller

import (
	"context"
	"log/slog"

	"drive-agent-backend/request"
	"drive-agent-backend/service/chat"
	"drive-agent-backend/utils"

	"github.com/gin-gonic/gin"
)

func AgentChat(c *gin.Context) {
	utils.SetSSEHeaders(c)

	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		utils.SendSSEMessage(c, utils.EventError, ErrParseRequest.Error())
		utils.SendSSEMessage(c, utils.EventDone, "")
		return
	}

	agent, err := chat.NewAgent(c, req)
	if err != nil {
		slog.Error(ErrCreateAgent.Error(), "err", err)
		utils.SendSSEMessage(c, utils.EventError, ErrCreateAgent.Error())
		utils.SendSSEMessage(c, utils.EventDone, "")
		return
	}
	defer agent.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 监听客户端的取消信号
	go func() {
		<-c.Done()
		cancel()
	}()

	if _, err := agent.Call(ctx, req.Query); err != nil {
		slog.Error(ErrCallAgent.Error(), "err", err)
		utils.SendSSEMessage(c, utils.EventError, ErrCallAgent.Error())
		utils.SendSSEMessage(c, utils.EventDone, "")
		return
	}

	if docs := agent.SearchTool.SourceDocs(); len(docs) > 0 {
		utils.SendSSEMessage(c, utils.EventSourceDocs, docs)
	}

	if err := agent.SaveSourceDocs(ctx); err != nil {
		slog.Error("Failed to save source docs", "err", err)
	}

	utils.SendSSEMessage(c, utils.EventDone, "")
}
