package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

// StudentHandler serves learning records: a student's own, and the
// students a teacher manages.
type StudentHandler struct {
	BaseHandler
	service services.StudentService
	users   services.UserService
	grading services.GradingService
}

func NewStudentHandler(service services.StudentService, users services.UserService, grading services.GradingService, logger utils.Logger) *StudentHandler {
	return &StudentHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		users:       users,
		grading:     grading,
	}
}

// ===== OWN RECORD =====

// GetMyRecord returns the caller's learning record
// @Summary Get my record
// @Tags records
// @Produce json
// @Success 200 {object} models.StudentRecord
// @Router /records/me [get]
func (h *StudentHandler) GetMyRecord(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), username, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// GetMyStats returns the caller's learning statistics
// @Summary Get my statistics
// @Tags records
// @Produce json
// @Success 200 {object} models.LearningStats
// @Router /records/me/stats [get]
func (h *StudentHandler) GetMyStats(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(c.Request.Context(), username, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ===== TEACHER VIEW =====

// RegisterStudent creates a student account owned by the caller. The role
// in the body is ignored.
func (h *StudentHandler) RegisterStudent(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.RegisterUserRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.Role = models.RoleStudent

	h.LogRequest(c, "Registering student", "student", req.Username)

	profile, err := h.users.Register(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// ListStudents lists the caller's students, or every student for admins
// @Summary List students
// @Tags teacher
// @Produce json
// @Success 200 {array} models.StudentSummary
// @Router /teacher/students [get]
func (h *StudentHandler) ListStudents(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Listing students")

	students, err := h.service.ListStudents(c.Request.Context(), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"students": students, "total": len(students)})
}

func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	student := c.Param("username")
	h.LogRequest(c, "Deleting student", "student", student)

	if err := h.service.DeleteStudent(c.Request.Context(), student, username); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Student deleted"})
}

func (h *StudentHandler) GetStudentRecord(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), c.Param("username"), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *StudentHandler) GetStudentStats(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(c.Request.Context(), c.Param("username"), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GradeAnswer stores teacher feedback and an optional score for one solved
// problem of a student.
// @Summary Grade answer
// @Tags teacher
// @Accept json
// @Produce json
// @Param username path string true "Student username"
// @Param index path int true "Solved problem index (zero-based)"
// @Param request body services.GradeRequest true "Feedback and score"
// @Success 200 {object} models.SolvedProblemRecord
// @Failure 404 {object} ErrorResponse "No solved problem at index"
// @Router /teacher/students/{username}/records/{index}/grade [put]
func (h *StudentHandler) GradeAnswer(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}
	index, ok := h.parseIndexParam(c, "index")
	if !ok {
		return
	}

	var req services.GradeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	student := c.Param("username")
	h.LogRequest(c, "Grading answer", "student", student, "index", index)

	graded, err := h.grading.Grade(c.Request.Context(), student, index, &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, graded)
}

func (h *StudentHandler) ExportRecords(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting student records")

	data, err := h.service.ExportRecordsXLSX(c.Request.Context(), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.sendFile(c, "student_records.xlsx", xlsxMIME, data)
}
