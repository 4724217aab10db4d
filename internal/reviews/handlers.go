package reviews

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantumforge/platform/internal/logging"
	"github.com/quantumforge/platform/internal/pagination"
	"github.com/quantumforge/platform/internal/realtime"
)

// Handler provides HTTP handlers for the review API.
type Handler struct {
	service *Service
	hub     *realtime.Hub // optional; nil disables event broadcasting
}

// NewHandler creates a new reviews handler.
func NewHandler(service *Service, hub *realtime.Hub) *Handler {
	return &Handler{service: service, hub: hub}
}

// RegisterRoutes sets up the review routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reviews", h.SubmitReview)
	r.GET("/reviews/:subjectId", h.ListReviews)
}

// SubmitReview handles POST /reviews
//
// A valid review always gets a 201, even when the subject has no profile
// yet or the certification mint fails. Only validation failures and
// storage errors surface to the client.
func (h *Handler) SubmitReview(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := h.service.Submit(ctx, in)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		logger.Error("failed to submit review", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to submit review",
		})
		return
	}

	h.broadcast(result)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Review submitted successfully",
		"review":  result.Review,
	})
}

// ListReviews handles GET /reviews/:subjectId
//
// Supports optional cursor pagination via ?cursor= and ?limit=. Without a
// limit the full history is returned, newest first.
func (h *Handler) ListReviews(c *gin.Context) {
	ctx := c.Request.Context()
	subjectID := c.Param("subjectId")

	list, err := h.service.ListBySubject(ctx, subjectID)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list reviews",
		})
		return
	}
	if list == nil {
		list = []*Review{}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid cursor",
		})
		return
	}
	if cursor != nil {
		for i, r := range list {
			if r.ID == cursor.ID {
				list = list[i+1:]
				break
			}
		}
	}

	resp := gin.H{}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			limit = 50
		}
		if len(list) > limit {
			list = list[:limit+1]
		}
		var next string
		var more bool
		list, next, more = pagination.ComputePage(list, limit, func(r *Review) (time.Time, string) {
			return r.SubmittedAt, r.ID
		})
		resp["nextCursor"] = next
		resp["hasMore"] = more
	}

	resp["reviews"] = list
	resp["count"] = len(list)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) broadcast(result *Result) {
	if h.hub == nil {
		return
	}

	h.hub.BroadcastReviewPosted(map[string]interface{}{
		"id":         result.Review.ID,
		"subjectId":  result.Review.SubjectID,
		"reviewerId": result.Review.ReviewerID,
		"rating":     float64(result.Review.Rating),
	})

	if result.Minted {
		h.hub.BroadcastCertificationAwarded(map[string]interface{}{
			"trader": result.Review.SubjectID,
			"tier":   string(result.Tier),
			"token":  result.Token,
		})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrMissingSubject) ||
		errors.Is(err, ErrMissingReviewer) ||
		errors.Is(err, ErrInvalidRating) ||
		errors.Is(err, ErrCommentTooLong)
}
