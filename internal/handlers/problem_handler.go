package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

const (
	maxUploadBytes = 10 << 20
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ProblemHandler struct {
	BaseHandler
	service    services.ProblemService
	generation services.GenerationService
}

func NewProblemHandler(service services.ProblemService, generation services.GenerationService, logger utils.Logger) *ProblemHandler {
	return &ProblemHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		generation:  generation,
	}
}

// ===== CORE CRUD ENDPOINTS =====

// ListProblems lists problems matching the query filters
// @Summary List problems
// @Tags problems
// @Produce json
// @Param school_type query string false "School type"
// @Param grade query string false "Grade"
// @Param topic query string false "Topic"
// @Param difficulty query string false "Difficulty (하, 중, 상)"
// @Param question_type query string false "Question type"
// @Param created_by query string false "Creator username"
// @Param q query string false "Search in question text"
// @Success 200 {array} models.Problem
// @Router /problems [get]
func (h *ProblemHandler) ListProblems(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Listing problems")

	problems, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"problems": problems, "total": len(problems)})
}

// GetProblem returns one problem
// @Summary Get problem
// @Tags problems
// @Produce json
// @Param id path string true "Problem ID"
// @Success 200 {object} models.Problem
// @Failure 404 {object} ErrorResponse
// @Router /problems/{id} [get]
func (h *ProblemHandler) GetProblem(c *gin.Context) {
	problem, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, problem)
}

// CreateProblem creates a problem owned by the caller
// @Summary Create problem
// @Tags problems
// @Accept json
// @Produce json
// @Param request body services.CreateProblemRequest true "Problem"
// @Success 201 {object} models.Problem
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /problems [post]
func (h *ProblemHandler) CreateProblem(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.CreateProblemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating problem", "topic", req.Topic)

	problem, err := h.service.Create(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, problem)
}

func (h *ProblemHandler) UpdateProblem(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.UpdateProblemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Updating problem", "problem_id", id)

	problem, err := h.service.Update(c.Request.Context(), id, &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, problem)
}

func (h *ProblemHandler) DeleteProblem(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Deleting problem", "problem_id", id)

	if err := h.service.Delete(c.Request.Context(), id, username); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Problem deleted"})
}

// ===== IMPORT / EXPORT =====

// ImportText parses pasted problem text and stores every problem found
// @Summary Import problems from text
// @Tags problems
// @Accept json
// @Produce json
// @Param request body services.TextImportRequest true "Metadata and text"
// @Success 201 {array} models.Problem
// @Failure 400 {object} ErrorResponse "Text could not be parsed"
// @Router /problems/import/text [post]
func (h *ProblemHandler) ImportText(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.TextImportRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Importing problem text", "bytes", len(req.Content))

	problems, err := h.service.ImportText(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"problems": problems, "total": len(problems)})
}

// ImportCSV reads the multipart field "file". Rows that fail are reported
// with their line number; the others are stored.
// @Summary Import problems from CSV
// @Tags problems
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} services.ImportResult
// @Router /problems/import/csv [post]
func (h *ProblemHandler) ImportCSV(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "CSV file is required",
			Details: err.Error(),
		})
		return
	}
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Message: "File too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.LogError(c, err, "Failed to open upload")
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Failed to read upload"})
		return
	}
	defer file.Close()

	h.LogRequest(c, "Importing problem CSV", "filename", header.Filename, "bytes", header.Size)

	result, err := h.service.ImportCSV(c.Request.Context(), file, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ProblemHandler) CSVTemplate(c *gin.Context) {
	data, err := h.service.CSVTemplate()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.sendFile(c, "problem_template.csv", "text/csv; charset=utf-8", data)
}

func (h *ProblemHandler) ExportXLSX(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting problems")

	data, err := h.service.ExportXLSX(c.Request.Context(), filter)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.sendFile(c, "problems.xlsx", xlsxMIME, data)
}

// ===== AI GENERATION =====

// GenerateProblems asks the configured providers for new problems and
// returns a draft for review. Nothing is stored until the draft is saved.
// @Summary Generate problems
// @Tags problems
// @Accept json
// @Produce json
// @Param request body services.GenerateProblemsRequest true "Metadata and count"
// @Success 201 {object} services.DraftResponse
// @Failure 503 {object} ErrorResponse "No provider configured"
// @Router /problems/generate [post]
func (h *ProblemHandler) GenerateProblems(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.GenerateProblemsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Generating problems", "count", req.Count, "provider", req.Provider)

	draft, err := h.generation.Generate(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, draft)
}

func (h *ProblemHandler) GetDraft(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	draft, err := h.generation.GetDraft(c.Request.Context(), c.Param("id"), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

func (h *ProblemHandler) SaveDraft(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.SaveDraftRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Saving draft", "draft_id", id, "edited", req.Content != "")

	problems, err := h.generation.SaveDraft(c.Request.Context(), id, &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"problems": problems, "total": len(problems)})
}

func (h *ProblemHandler) parseFilter(c *gin.Context) (models.ProblemFilter, bool) {
	var filter models.ProblemFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return filter, false
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return filter, true
}
