package delivery

import (
	"net/http"
	"strconv"
	"time"

	pipedomain "mailpilot-backend/internal/pipeline/domain"
	pipedto "mailpilot-backend/internal/pipeline/dto"
	"mailpilot-backend/internal/pipeline/repository"
	"mailpilot-backend/internal/pipeline/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PipelineHandler struct {
	pipeline usecase.PipelineUsecase
	ruleRepo repository.RuleRepository
}

func NewPipelineHandler(pipeline usecase.PipelineUsecase, ruleRepo repository.RuleRepository) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		ruleRepo: ruleRepo,
	}
}

// Run triggers a full pipeline cycle on demand.
func (h *PipelineHandler) Run(c *gin.Context) {
	if err := h.pipeline.RunBatch(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "pipeline run complete"})
}

func (h *PipelineHandler) ListReviewFlags(c *gin.Context) {
	userID := c.GetString("userID")

	limit := 20
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	flags, total, err := h.pipeline.ListPendingFlags(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pipedto.ReviewFlagsResponse{
		Flags:  flags,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *PipelineHandler) ResolveReviewFlag(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.pipeline.ResolveFlag(userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "flag resolved"})
}

func (h *PipelineHandler) DismissReviewFlag(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.pipeline.DismissFlag(userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "flag dismissed"})
}

func (h *PipelineHandler) ListRules(c *gin.Context) {
	userID := c.GetString("userID")
	rules, err := h.ruleRepo.FindByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pipedto.RulesResponse{Rules: rules})
}

func (h *PipelineHandler) CreateRule(c *gin.Context) {
	var req pipedto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A mapping rule without a complete target can never fire; reject
	// it at creation instead of silently skipping it later.
	if req.Kind == pipedomain.RuleMapping && (req.TargetEntityType == nil || req.TargetEntityID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mapping rules require target_entity_type and target_entity_id"})
		return
	}

	rule := &pipedomain.Rule{
		ID:               uuid.New().String(),
		UserID:           c.GetString("userID"),
		RuleText:         req.RuleText,
		Kind:             req.Kind,
		Pattern:          req.Pattern,
		TargetEntityType: req.TargetEntityType,
		TargetEntityID:   req.TargetEntityID,
		Priority:         req.Priority,
		Active:           true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := h.ruleRepo.Create(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (h *PipelineHandler) UpdateRule(c *gin.Context) {
	userID := c.GetString("userID")

	rule, err := h.ruleRepo.FindByID(c.Param("id"))
	if err != nil || rule == nil || rule.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}

	var req pipedto.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.RuleText != nil {
		rule.RuleText = *req.RuleText
	}
	if req.Pattern != nil {
		rule.Pattern = *req.Pattern
	}
	if req.TargetEntityType != nil {
		rule.TargetEntityType = req.TargetEntityType
	}
	if req.TargetEntityID != nil {
		rule.TargetEntityID = req.TargetEntityID
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	rule.UpdatedAt = time.Now()

	if err := h.ruleRepo.Update(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (h *PipelineHandler) DeleteRule(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.ruleRepo.Delete(c.Param("id"), userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}
