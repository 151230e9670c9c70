// Package audits implements the read-only query endpoints over the audit
// record tables. All endpoints are paginated and newest-first; records are
// append-only, so there are no mutation handlers here.
package audits

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bastionhq/bastion-audit/internal/db/repositories"
)

// Handlers handles audit record query endpoints
type Handlers struct {
	auditRepo *repositories.AuditRepository
}

// NewHandlers creates a new audit query Handlers instance
func NewHandlers(auditRepo *repositories.AuditRepository) *Handlers {
	return &Handlers{auditRepo: auditRepo}
}

// pagination parses page/per_page query parameters with the usual clamping.
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// dateRange parses optional date_from/date_to query parameters (RFC 3339 or
// plain dates).
func dateRange(c *gin.Context) (from, to *time.Time, err error) {
	parse := func(value string) (*time.Time, error) {
		if value == "" {
			return nil, nil
		}
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return &t, nil
		}
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	if from, err = parse(c.Query("date_from")); err != nil {
		return nil, nil, err
	}
	if to, err = parse(c.Query("date_to")); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func optionalQuery(c *gin.Context, key string) *string {
	if value := c.Query(key); value != "" {
		return &value
	}
	return nil
}

// ListOperateLogsHandler lists operate logs with optional filters.
// GET /api/v1/audits/operate-logs?user=&action=&resource_type=&org_id=&date_from=&date_to=
func (h *Handlers) ListOperateLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		from, to, err := dateRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date filter"})
			return
		}

		filters := repositories.OperateLogFilters{
			User:         optionalQuery(c, "user"),
			Action:       optionalQuery(c, "action"),
			ResourceType: optionalQuery(c, "resource_type"),
			OrgID:        optionalQuery(c, "org_id"),
			StartDate:    from,
			EndDate:      to,
		}

		logs, total, err := h.auditRepo.ListOperateLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list operate logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"operate_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// ListLoginLogsHandler lists login logs with optional filters.
// GET /api/v1/audits/login-logs?username=&status=&date_from=&date_to=
func (h *Handlers) ListLoginLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		from, to, err := dateRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date filter"})
			return
		}

		filters := repositories.LoginLogFilters{
			Username:  optionalQuery(c, "username"),
			StartDate: from,
			EndDate:   to,
		}
		if raw := c.Query("status"); raw != "" {
			status, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
				return
			}
			filters.Status = &status
		}

		logs, total, err := h.auditRepo.ListLoginLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list login logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"login_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// ListPasswordChangeLogsHandler lists password-change logs.
// GET /api/v1/audits/password-changes?org_id=
func (h *Handlers) ListPasswordChangeLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		logs, total, err := h.auditRepo.ListPasswordChangeLogs(c.Request.Context(), optionalQuery(c, "org_id"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list password change logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"password_change_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
