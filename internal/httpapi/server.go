// Package httpapi serves the portal database over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campusportal/internal/audit"
	"campusportal/internal/auth"
	"campusportal/internal/cloudinary"
	"campusportal/internal/httpmiddleware"
	"campusportal/internal/logger"
	"campusportal/internal/model"
	"campusportal/internal/portal"
)

// Uploader stores images and returns their public location.
type Uploader interface {
	UploadDataURL(ctx context.Context, data string) (*cloudinary.UploadResult, error)
	UploadFile(ctx context.Context, r io.Reader, filename string) (*cloudinary.UploadResult, error)
}

// PasswordSetter replaces a user's password.
type PasswordSetter interface {
	SetPassword(ctx context.Context, userID, secret string) error
}

// Config wires the server. Uploader, Passwords and Limiter are optional.
type Config struct {
	DB        *portal.DB
	Auth      *auth.Authenticator
	Signer    *auth.Signer
	Uploader  Uploader
	Passwords PasswordSetter
	Limiter   httpmiddleware.Limiter
	Logger    *zap.Logger
}

// Server holds the handlers.
type Server struct {
	db        *portal.DB
	auth      *auth.Authenticator
	signer    *auth.Signer
	uploader  Uploader
	passwords PasswordSetter
	limiter   httpmiddleware.Limiter
	log       *zap.Logger
	session   gin.HandlerFunc
}

// New builds a server from cfg.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		db:        cfg.DB,
		auth:      cfg.Auth,
		signer:    cfg.Signer,
		uploader:  cfg.Uploader,
		passwords: cfg.Passwords,
		limiter:   cfg.Limiter,
		log:       log,
		session:   auth.RequireSession(cfg.Signer),
	}
}

var (
	adminOnly = []model.UserType{model.UserAdmin}
	staff     = []model.UserType{model.UserAdmin, model.UserTeacher}
)

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(logger.Recovery(s.log))
	r.Use(logger.GinMiddleware(s.log, "/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	if s.limiter != nil {
		r.Use(httpmiddleware.RateLimit(s.limiter, s.log))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.POST("/login", s.login)
	v1.POST("/refresh", s.refresh)
	v1.POST("/logout", s.session, s.logout)
	v1.GET("/me", s.session, s.me)

	db := s.db
	mount(s, v1, "/users", resource[model.User, model.UserPatch]{
		get: db.GetUserByID, add: db.AddUser, update: db.UpdateUser, remove: db.DeleteUser,
		writers: adminOnly,
	})
	v1.GET("/users", s.session, s.listUsers)
	v1.GET("/users/:id/attendance-stats", s.session, s.attendanceStats)
	v1.PUT("/users/:id/password", s.session, s.setPassword)

	mount(s, v1, "/classes", resource[model.Class, model.ClassPatch]{
		list: db.GetClasses, get: db.GetClassByID, add: db.AddClass, update: db.UpdateClass, remove: db.DeleteClass,
		writers: adminOnly,
	})
	mount(s, v1, "/slots", resource[model.Slot, model.SlotPatch]{
		list: db.GetSlots, get: db.GetSlotByID, add: db.AddSlot, update: db.UpdateSlot, remove: db.DeleteSlot,
		writers: adminOnly,
	})
	mount(s, v1, "/schedules", resource[model.Schedule, model.SchedulePatch]{
		list: db.GetSchedules, get: db.GetScheduleByID, add: db.AddSchedule, update: db.UpdateSchedule, remove: db.DeleteSchedule,
		writers: adminOnly,
	})
	mount(s, v1, "/attendance", resource[model.Attendance, model.AttendancePatch]{
		get: db.GetAttendanceByID, add: db.AddAttendance, update: db.UpdateAttendance, remove: db.DeleteAttendance,
		writers: staff,
	})
	v1.GET("/attendance", s.session, s.listAttendance)
	v1.POST("/attendance/roll", s.session, auth.RequireRole(staff...), s.markRoll)

	mount(s, v1, "/notices", resource[model.Notice, model.NoticePatch]{
		list: db.GetNotices, get: db.GetNoticeByID, add: db.AddNotice, update: db.UpdateNotice, remove: db.DeleteNotice,
		public: true, writers: adminOnly,
	})
	mount(s, v1, "/events", resource[model.Event, model.AnnouncementPatch]{
		list: db.GetEvents, get: db.GetEventByID, add: db.AddEvent, update: db.UpdateEvent, remove: db.DeleteEvent,
		public: true, writers: adminOnly,
	})
	mount(s, v1, "/alerts", resource[model.Alert, model.AnnouncementPatch]{
		list: db.GetAlerts, get: db.GetAlertByID, add: db.AddAlert, update: db.UpdateAlert, remove: db.DeleteAlert,
		public: true, writers: adminOnly,
	})
	mount(s, v1, "/faculty", resource[model.Faculty, model.FacultyPatch]{
		list: db.GetFaculty, get: db.GetFacultyByID, add: db.AddFaculty, update: db.UpdateFaculty, remove: db.DeleteFaculty,
		public: true, writers: adminOnly,
	})
	mount(s, v1, "/calendar", resource[model.CalendarEntry, model.CalendarEntryPatch]{
		list: db.GetCalendarEntries, get: db.GetCalendarEntryByID, add: db.AddCalendarEntry,
		update: db.UpdateCalendarEntry, remove: db.DeleteCalendarEntry,
		public: true, writers: adminOnly,
	})
	mount(s, v1, "/courses", resource[model.Course, model.CoursePatch]{
		list: db.GetCourses, get: db.GetCourseByID, add: db.AddCourse, update: db.UpdateCourse, remove: db.DeleteCourse,
		public: true, writers: adminOnly,
	})
	mount(s, v1, "/complaints", resource[model.Complaint, model.ComplaintPatch]{
		get: db.GetComplaintByID, update: db.UpdateComplaint, remove: db.DeleteComplaint,
		writers: adminOnly,
	})
	v1.GET("/complaints", s.session, s.listComplaints)
	v1.POST("/complaints", s.session, auth.RequireRole(model.UserStudent, model.UserAdmin), s.fileComplaint)
	v1.POST("/complaints/:id/status", s.session, auth.RequireRole(adminOnly...), s.complaintStatus)

	v1.GET("/audit-logs", s.session, auth.RequireRole(adminOnly...), s.auditLogs)
	v1.POST("/admin/reset", s.session, auth.RequireRole(adminOnly...), s.reset)
	v1.POST("/uploads", s.session, auth.RequireRole(staff...), s.upload)
	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	st := s.db.Store()
	if err := st.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": st.Backend(), "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": st.Backend()})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		RollNo   string `json:"roll_no" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := s.auth.Login(c.Request.Context(), req.RollNo, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, *u)
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, err := s.signer.ParseRefresh(req.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	u, err := s.db.GetUserByID(c.Request.Context(), claims.Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
		return
	}
	s.issue(c, *u)
}

func (s *Server) issue(c *gin.Context, u model.User) {
	tokens, err := s.signer.Issue(u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "tokens": tokens})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	u, err := s.db.GetUserByID(c.Request.Context(), claims.Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	if u == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) listUsers(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		users []model.User
		err   error
	)
	if t := c.Query("type"); t != "" {
		users, err = s.db.UsersByType(ctx, model.UserType(t))
	} else {
		users, err = s.db.GetUsers(ctx)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// selfOrStaff allows staff, and students only for their own id.
func selfOrStaff(c *gin.Context, userID string) bool {
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role == model.UserStudent && claims.Subject != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

func (s *Server) attendanceStats(c *gin.Context) {
	id := c.Param("id")
	if !selfOrStaff(c, id) {
		return
	}
	st, err := s.db.StudentAttendanceStats(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) setPassword(c *gin.Context) {
	if s.passwords == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "passwords are managed by configuration"})
		return
	}
	id := c.Param("id")
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != model.UserAdmin && claims.Subject != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	var req struct {
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := s.db.GetUserByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if u == nil {
		notFound(c)
		return
	}
	if err := s.passwords.SetPassword(c.Request.Context(), id, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listAttendance(c *gin.Context) {
	q := portal.AttendanceQuery{
		StudentID: c.Query("student_id"),
		ClassID:   c.Query("class_id"),
		SlotID:    c.Query("slot_id"),
		Date:      c.Query("date"),
	}
	if claims, _ := auth.ClaimsFrom(c); claims.Role == model.UserStudent {
		q.StudentID = claims.Subject
	}
	marks, err := s.db.AttendanceFor(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, marks)
}

func (s *Server) markRoll(c *gin.Context) {
	var roll portal.Roll
	if err := c.ShouldBindJSON(&roll); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := s.db.MarkAttendance(c.Request.Context(), roll)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) listComplaints(c *gin.Context) {
	all, err := s.db.GetComplaints(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != model.UserStudent {
		c.JSON(http.StatusOK, all)
		return
	}
	own := make([]model.Complaint, 0, len(all))
	for _, cm := range all {
		if cm.StudentID == claims.Subject {
			own = append(own, cm)
		}
	}
	c.JSON(http.StatusOK, own)
}

func (s *Server) fileComplaint(c *gin.Context) {
	var cm model.Complaint
	if err := c.ShouldBindJSON(&cm); err != nil {
		badRequest(c, err)
		return
	}
	if claims, _ := auth.ClaimsFrom(c); claims.Role == model.UserStudent {
		cm.StudentID = claims.Subject
		cm.Status = ""
	}
	added, err := s.db.AddComplaint(c.Request.Context(), cm)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

func (s *Server) complaintStatus(c *gin.Context) {
	var req struct {
		Status model.ComplaintStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := s.db.SetComplaintStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	if updated == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) auditLogs(c *gin.Context) {
	q := audit.Query{
		Search: c.Query("search"),
		Action: c.Query("action"),
		Window: audit.Window(c.Query("window")),
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, err)
			return
		}
		*p.dst = t
	}
	logs, err := s.db.FilterAuditLogs(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) reset(c *gin.Context) {
	if err := s.db.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	logger.FromContext(c, s.log).Warn("database reset over http")
	c.Status(http.StatusNoContent)
}

func (s *Server) upload(c *gin.Context) {
	if s.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	ctx := c.Request.Context()
	var (
		res *cloudinary.UploadResult
		err error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		res, err = s.uploader.UploadFile(ctx, file, header.Filename)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": `provide {"data": "<base64 data URL>"}`})
			return
		}
		res, err = s.uploader.UploadDataURL(ctx, body.Data)
	}
	if err != nil {
		logger.FromContext(c, s.log).Error("image upload failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       res.SecureURL,
		"public_id": res.PublicID,
		"width":     res.Width,
		"height":    res.Height,
		"bytes":     res.Bytes,
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
