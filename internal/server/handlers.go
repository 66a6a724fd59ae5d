package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

// Handlers exposes the HTTP surface of the attendance service.
type Handlers struct {
	auth    *AuthService
	att     *AttendanceService
	banners []string
	log     *zap.Logger
}

// NewHandlers constructs the handler set.
func NewHandlers(auth *AuthService, att *AttendanceService, banners []string, log *zap.Logger) *Handlers {
	return &Handlers{auth: auth, att: att, banners: banners, log: log}
}

// Login handles POST /api/login.
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		EmpCode  string `json:"emp_code" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	token, _, user, err := h.auth.LoginWithIP(c.Request.Context(), req.EmpCode, req.Password, c.ClientIP())
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	case err != nil:
		h.log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"user": gin.H{
			"id":       user.ID,
			"name":     user.Name,
			"email":    user.Email,
			"roles":    user.Roles,
			"emp_code": user.EmpCode,
		},
	})
}

// SubmitAttendance handles POST /api/attendances (multipart form).
func (h *Handlers) SubmitAttendance(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// The form carries user_id for compatibility, but the token decides
	// identity; a mismatch is rejected rather than trusted.
	if v := c.PostForm("user_id"); v != "" {
		if formUser, err := strconv.ParseInt(v, 10, 64); err != nil || formUser != caller {
			c.JSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
	}

	tsMillis, err := strconv.ParseInt(c.PostForm("timestamp"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad timestamp"})
		return
	}
	lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad latitude"})
		return
	}
	lon, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad longitude"})
		return
	}

	var kind model.Kind
	switch c.PostForm("type") {
	case "check_in":
		kind = model.KindEntry
	case "check_out":
		kind = model.KindExit
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad type"})
		return
	}

	battery, _ := strconv.Atoi(c.PostForm("battery_percentage"))
	signal, _ := strconv.Atoi(c.PostForm("signal_strength"))

	sub := Submission{
		ClientID:  c.PostForm("client_id"),
		Timestamp: time.UnixMilli(tsMillis),
		Latitude:  lat,
		Longitude: lon,
		Note:      c.PostForm("notes"),
		Device:    c.PostForm("device_model"),
		Battery:   battery,
		Signal:    signal,
		Network:   c.PostForm("network_type"),
		Online:    c.PostForm("is_internet_available") == "1",
		Address:   c.PostForm("address"),
		Kind:      kind,
	}

	if fh, err := c.FormFile("photo"); err == nil && fh.Size > 0 {
		f, err := fh.Open()
		if err == nil {
			sub.Photo, _ = io.ReadAll(f)
			f.Close()
		}
	}

	id, created, err := h.att.Record(c.Request.Context(), caller, sub)
	if err != nil {
		h.log.Error("record attendance", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	msg := "attendance recorded"
	if !created {
		msg = "attendance already recorded"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "server_id": id})
}

// ListAttendances handles GET /api/attendances.
func (h *Handlers) ListAttendances(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.att.List(c.Request.Context(), caller, limit)
	if err != nil {
		h.log.Error("list attendances", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// Banners handles GET /api/banners.
func (h *Handlers) Banners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"banners": h.banners})
}

// Health handles GET /healthz.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewRouter assembles the gin engine with logging, recovery and routes.
func NewRouter(h *Handlers, signKey []byte, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recover(log), Logging(log))

	r.GET("/healthz", h.Health)
	r.POST("/api/login", h.Login)

	authed := r.Group("/api", AuthRequired(signKey))
	authed.POST("/attendances", h.SubmitAttendance)
	authed.GET("/attendances", h.ListAttendances)
	authed.GET("/banners", h.Banners)

	return r
}
