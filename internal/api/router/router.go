package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"ats-agent-go/internal/api/handler"
)

// RegisterRoutes 注册API路由
func RegisterRoutes(h *server.Hertz,
	processHandler *handler.ProcessHandler,
	candidateHandler *handler.CandidateHandler,
	evaluationHandler *handler.EvaluationHandler,
) {
	api := h.Group("/api/v1")

	// 流程管理
	api.POST("/processes", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateProcessRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}
		resp, err := processHandler.HandleCreateProcess(c, &req)
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 候选人管理
	api.POST("/candidates", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateCandidateRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}
		resp, err := candidateHandler.HandleCreateCandidate(c, &req)
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/candidates/:id/cv", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := candidateHandler.HandleCVUpload(c, ctx.Param("id"), file, fileHeader.Filename)
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/candidates/:id/questions", func(c context.Context, ctx *app.RequestContext) {
		views, err := candidateHandler.HandleListQuestions(c, ctx.Param("id"))
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"questions": views})
	})

	api.GET("/candidates/:id/evaluation", func(c context.Context, ctx *app.RequestContext) {
		view, err := candidateHandler.HandleGetEvaluation(c, ctx.Param("id"))
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, view)
	})

	// 答案采集
	api.PUT("/questions/:id/answer", func(c context.Context, ctx *app.RequestContext) {
		var req handler.AnswerRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}
		if err := candidateHandler.HandleAnswerQuestion(c, ctx.Param("id"), &req); err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	// 评估流水线
	api.POST("/candidates/:id/questions/generate", func(c context.Context, ctx *app.RequestContext) {
		resp, err := evaluationHandler.HandleGenerateQuestions(c, ctx.Param("id"), string(ctx.GetHeader("X-Recruiter-ID")))
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/candidates/:id/score", func(c context.Context, ctx *app.RequestContext) {
		resp, err := evaluationHandler.HandleScoreCandidate(c, ctx.Param("id"), string(ctx.GetHeader("X-Recruiter-ID")))
		if err != nil {
			status, body := handler.MapError(err)
			ctx.JSON(status, body)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
