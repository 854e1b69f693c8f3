package controller

import (
	"errors"
	"net/http"
	"strconv"

	"exam_review_backend/internal/model"
	"exam_review_backend/internal/service"
	"exam_review_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TestingController struct {
	Service *service.TestingService
}

func NewTestingController(svc *service.TestingService) *TestingController {
	return &TestingController{Service: svc}
}

type StartRunResponse struct {
	RunID string `json:"runId"`
}

type BatchDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type ReviewRequest struct {
	Status  model.ManualReviewStatus `json:"status" binding:"required"`
	Comment string                   `json:"comment"`
}

func actorFrom(ctx *gin.Context) (service.Actor, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		return service.Actor{}, false
	}
	return service.Actor{UserID: user.UserID, Role: user.Role, RealName: user.RealName}, true
}

func questionIDParam(ctx *gin.Context) (uint, bool) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid question id")
		return 0, false
	}
	return id, true
}

// writeError 将业务错误映射为 HTTP 状态码
func writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrQuestionNotFound), errors.Is(err, util.ErrRunNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrRunAlreadyActive), errors.Is(err, util.ErrRunNotRunning), errors.Is(err, util.ErrRunNotCompleted):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidReview):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrServiceShutdown):
		util.Error(ctx, http.StatusServiceUnavailable, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 开始题目测试
// @Description 创建测试记录并在后台执行，立即返回 runId 供轮询进度
// @Tags 题目测试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题目ID"
// @Success 202 {object} util.Response{data=StartRunResponse}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /testing/questions/{id}/runs [post]
func (c *TestingController) StartRun(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	questionID, ok := questionIDParam(ctx)
	if !ok {
		return
	}

	if err := c.Service.CheckQuestionAccess(ctx.Request.Context(), questionID, actor); err != nil {
		writeError(ctx, err)
		return
	}

	runID, err := c.Service.StartRun(ctx.Request.Context(), questionID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	util.Accepted(ctx, StartRunResponse{RunID: runID})
}

// @Summary 执行已创建的测试记录
// @Description 对 running 状态的记录从下一个序号继续执行
// @Tags 题目测试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题目ID"
// @Param runId path string true "测试ID"
// @Success 202 {object} util.Response{data=StartRunResponse}
// @Failure 409 {object} util.Response
// @Router /testing/questions/{id}/runs/{runId}/start [post]
func (c *TestingController) StartExistingRun(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	questionID, ok := questionIDParam(ctx)
	if !ok {
		return
	}

	if err := c.Service.CheckQuestionAccess(ctx.Request.Context(), questionID, actor); err != nil {
		writeError(ctx, err)
		return
	}

	runID := ctx.Param("runId")
	if err := c.Service.StartExistingRun(ctx.Request.Context(), questionID, runID); err != nil {
		writeError(ctx, err)
		return
	}

	util.Accepted(ctx, StartRunResponse{RunID: runID})
}

// @Summary 查询测试进度
// @Tags 题目测试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测试ID"
// @Success 200 {object} util.Response{data=service.Progress}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /testing/runs/{id}/progress [get]
func (c *TestingController) GetProgress(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	progress, err := c.Service.GetProgress(ctx.Request.Context(), ctx.Param("id"), actor)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 已完成的测试列表
// @Description 普通用户只能看到自己题目的测试，审核员和管理员可以看到全部
// @Tags 题目测试
// @Produce json
// @Security ApiKeyAuth
// @Param qualified query bool false "只看合格（或不合格）的测试"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /testing/runs [get]
func (c *TestingController) ListRuns(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	query := service.RunQuery{Page: page, Limit: limit}
	if v := ctx.Query("qualified"); v != "" {
		qualified, err := strconv.ParseBool(v)
		if err != nil {
			util.BadRequest(ctx, "invalid qualified filter")
			return
		}
		query.Qualified = &qualified
	}

	runs, total, page, limit, err := c.Service.ListCompleted(ctx.Request.Context(), actor, query)
	if err != nil {
		writeError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: runs, Total: total, Page: page, Limit: limit})
}

// @Summary 测试详情
// @Tags 题目测试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测试ID"
// @Success 200 {object} util.Response{data=model.TestRun}
// @Failure 404 {object} util.Response
// @Router /testing/runs/{id} [get]
func (c *TestingController) GetRun(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	run, err := c.Service.GetRun(ctx.Request.Context(), ctx.Param("id"), actor)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, run)
}

// @Summary 删除测试
// @Tags 题目测试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测试ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /testing/runs/{id} [delete]
func (c *TestingController) DeleteRun(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	if err := c.Service.DeleteRun(ctx.Request.Context(), ctx.Param("id"), actor); err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 批量删除测试
// @Tags 题目测试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body BatchDeleteRequest true "测试ID列表"
// @Success 200 {object} util.Response
// @Router /testing/runs/batch-delete [post]
func (c *TestingController) BatchDelete(ctx *gin.Context) {
	var req BatchDeleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	deleted, err := c.Service.DeleteRuns(ctx.Request.Context(), req.IDs)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": deleted})
}

// @Summary 人工审核测试结果
// @Tags 题目测试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测试ID"
// @Param body body ReviewRequest true "审核结论"
// @Success 200 {object} util.Response{data=model.TestRun}
// @Failure 400 {object} util.Response
// @Router /testing/runs/{id}/review [put]
func (c *TestingController) ReviewRun(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	run, err := c.Service.ReviewRun(ctx.Request.Context(), ctx.Param("id"), req.Status, req.Comment, actor)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, run)
}
