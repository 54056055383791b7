package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/services"
)

// AuditController exposes the audit trail.
type AuditController struct {
	audit *services.AuditService
}

// NewAuditController creates an AuditController.
func NewAuditController(audit *services.AuditService) *AuditController {
	return &AuditController{audit: audit}
}

// GetAuditLogs lists audit rows, newest first.
// GET /api/v1/audit-logs?entity_type=&entity_id=&user_id=&action_type=&limit=&offset=
func (ac *AuditController) GetAuditLogs(c *gin.Context) {
	logs, err := ac.audit.List(c.Request.Context(), services.AuditFilter{
		EntityType: c.Query("entity_type"),
		EntityID:   queryUint(c, "entity_id"),
		UserID:     queryUint(c, "user_id"),
		ActionType: c.Query("action_type"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, logs)
}
