package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"github.com/monocle-dev/crons/internal/utils"
	"go.uber.org/zap"
)

type CheckInResponse struct {
	ID        string              `json:"id"`
	Status    types.CheckInStatus `json:"status"`
	Duration  *int                `json:"duration"`
	DateAdded time.Time           `json:"date_added"`
}

type CheckInListResponse struct {
	CheckIns   []CheckInResponse `json:"checkins"`
	NextCursor *string           `json:"next_cursor"`
	PrevCursor *string           `json:"prev_cursor"`
}

func NewCheckInResponse(checkin models.MonitorCheckIn) CheckInResponse {
	return CheckInResponse{
		ID:        checkin.GUID.String(),
		Status:    checkin.Status,
		Duration:  checkin.Duration,
		DateAdded: checkin.DateAdded,
	}
}

// CheckInHandler serves the check-in ingestion and history endpoints.
type CheckInHandler struct {
	Engine *checkins.Engine
	Query  *checkins.QueryService
}

func (h *CheckInHandler) Create(ctx *gin.Context) {
	principal, err := utils.GetPrincipal(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	monitorID, err := utils.GetMonitorGUID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	monitor, err := findMonitor(principal, monitorID)

	if err != nil {
		respondLookupError(ctx, err, "Monitor")
		return
	}

	var raw checkins.RawReport

	// An empty body is an empty report, so validation names the missing fields.
	if err := ctx.ShouldBindJSON(&raw); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	report, err := checkins.Validate(raw)

	if err != nil {
		respondCheckInError(ctx, err)
		return
	}

	checkin, err := h.Engine.RecordCheckIn(ctx.Request.Context(), &monitor, monitor.ProjectID, report)

	if err != nil {
		respondCheckInError(ctx, err)
		return
	}

	BroadcastCheckIn(monitor, *checkin)

	ctx.JSON(http.StatusCreated, NewCheckInResponse(*checkin))
}

func (h *CheckInHandler) List(ctx *gin.Context) {
	principal, err := utils.GetPrincipal(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	// Ingestion keys can write check-ins but never read them back.
	if !principal.CanRead() {
		respondCheckInError(ctx, checkins.ErrUnauthorized)
		return
	}

	monitorID, err := utils.GetMonitorGUID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, err := utils.GetQueryInt(ctx, "limit")

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	monitor, err := findMonitor(principal, monitorID)

	if err != nil {
		respondLookupError(ctx, err, "Monitor")
		return
	}

	page, err := h.Query.List(ctx.Request.Context(), principal, &monitor, ctx.Query("cursor"), limit)

	if err != nil {
		respondCheckInError(ctx, err)
		return
	}

	response := CheckInListResponse{CheckIns: make([]CheckInResponse, 0, len(page.CheckIns))}

	for _, checkin := range page.CheckIns {
		response.CheckIns = append(response.CheckIns, NewCheckInResponse(checkin))
	}

	if page.Next != nil {
		next := page.Next.String()
		response.NextCursor = &next
	}
	if page.Prev != nil {
		prev := page.Prev.String()
		response.PrevCursor = &prev
	}

	ctx.Header("Link", linkHeader(ctx.Request.URL, page))
	ctx.JSON(http.StatusOK, response)
}

// linkHeader renders previous and next page links in the
// `<url>; rel="next"; results="true"; cursor="..."` format.
func linkHeader(base *url.URL, page *checkins.Page) string {
	link := func(rel string, cursor *checkins.Cursor) string {
		results := cursor != nil
		if cursor == nil {
			cursor = &checkins.Cursor{}
		}

		u := *base
		query := u.Query()
		query.Set("cursor", cursor.String())
		u.RawQuery = query.Encode()

		return fmt.Sprintf(`<%s>; rel="%s"; results="%t"; cursor="%s"`, u.String(), rel, results, cursor.String())
	}

	return strings.Join([]string{link("previous", page.Prev), link("next", page.Next)}, ", ")
}

func respondCheckInError(ctx *gin.Context, err error) {
	var (
		verr *checkins.ValidationError
		perr *checkins.PersistenceError
	)

	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid check-in", "fields": verr.Fields})
	case errors.Is(err, checkins.ErrUnauthorized):
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Project keys cannot read check-ins"})
	case errors.As(err, &perr):
		zap.L().Warn("Check-in transaction failed", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Check-in could not be stored, retry later"})
	default:
		zap.L().Error("Check-in failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
