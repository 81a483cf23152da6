package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/calendard/internal/models"
)

type scheduleRequest struct {
	TypeID         string           `json:"type_id"`
	Title          string           `json:"title" binding:"required"`
	Description    string           `json:"description"`
	AllDay         bool             `json:"all_day"`
	Start          time.Time        `json:"dtstart" binding:"required"`
	End            time.Time        `json:"dtend" binding:"required"`
	RecurrenceRule string           `json:"recurrence_rule"`
	Exceptions     []time.Time      `json:"exdates"`
	IsLunar        bool             `json:"is_lunar"`
	Alarm          models.AlarmType `json:"alarm"`
}

func (r scheduleRequest) schedule() *models.Schedule {
	typeID := r.TypeID
	if typeID == "" {
		typeID = "type-other"
	}
	return &models.Schedule{
		TypeID:         typeID,
		Title:          r.Title,
		Description:    r.Description,
		AllDay:         r.AllDay,
		Start:          r.Start,
		End:            r.End,
		RecurrenceRule: r.RecurrenceRule,
		Exceptions:     r.Exceptions,
		IsLunar:        r.IsLunar,
		Alarm:          r.Alarm,
	}
}

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.calendar.ListAccounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// listOccurrences answers ?start=&end=&keyword=. Bounds are RFC 3339 times
// or dates; a date as end covers that whole day.
func (s *Server) listOccurrences(c *gin.Context) {
	start, err := s.parseBound(c.Query("start"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start: " + err.Error()})
		return
	}
	end, err := s.parseBound(c.Query("end"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end: " + err.Error()})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end is before start"})
		return
	}

	occs, err := s.calendar.Occurrences(c.Request.Context(), account(c).AccountID, start, end, c.Query("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}
	if occs == nil {
		occs = []*models.Schedule{}
	}
	c.JSON(http.StatusOK, gin.H{"occurrences": occs})
}

func (s *Server) parseBound(v string, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(s.loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 time or YYYY-MM-DD")
	}
	if end {
		return d.AddDate(0, 0, 1).Add(-time.Second), nil
	}
	return d, nil
}

func (s *Server) getSchedule(c *gin.Context) {
	sched, err := s.calendar.GetSchedule(c.Request.Context(), account(c).AccountID, c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) createSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	sched, err := s.calendar.CreateSchedule(c.Request.Context(), account(c).AccountID, req.schedule())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	sched := req.schedule()
	sched.ScheduleID = c.Param("sid")
	updated, err := s.calendar.UpdateSchedule(c.Request.Context(), account(c).AccountID, sched)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.calendar.DeleteSchedule(c.Request.Context(), account(c).AccountID, c.Param("sid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requestSync(c *gin.Context) {
	acct := account(c)
	if s.syncs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no remote storage configured"})
		return
	}
	if !acct.IsNetwork() {
		c.JSON(http.StatusConflict, gin.H{"error": "account is not synchronized"})
		return
	}

	direction := models.ParseSyncDirection(c.Query("direction"))
	s.syncs.Request(acct.AccountID, direction)
	c.JSON(http.StatusAccepted, gin.H{"account_id": acct.AccountID, "direction": direction.String()})
}
