package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/parser"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries what every handler needs: a logger and the error
// mapping from service errors to HTTP responses.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Info(msg, append([]any{"user", c.GetString("user_id")}, args...)...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Error(msg, append([]any{"error", err}, args...)...)
}

// currentUser returns the username set by the auth middleware.
func (h *BaseHandler) currentUser(c *gin.Context) (string, bool) {
	username := c.GetString("user_id")
	if username == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return "", false
	}
	return username, true
}

func (h *BaseHandler) parseIndexParam(c *gin.Context, name string) (int, bool) {
	index, err := strconv.Atoi(c.Param(name))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name,
			Details: c.Param(name),
		})
		return 0, false
	}
	return index, true
}

func (h *BaseHandler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *BaseHandler) sendFile(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// handleServiceError maps service errors to HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs services.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrs,
		})
		return
	}

	var businessErr *services.BusinessRuleError
	if errors.As(err, &businessErr) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessErr.Message,
			Details: businessErr,
		})
		return
	}

	var permissionErr *services.PermissionError
	if errors.As(err, &permissionErr) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Permission denied",
			Details: permissionErr.Reason,
		})
		return
	}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Could not parse problem text",
			Details: parseErr.Error(),
		})
		return
	}

	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrProblemNotFound),
		errors.Is(err, services.ErrRecordNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, quiz.ErrSessionNotFound),
		errors.Is(err, services.ErrDraftNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrUserAlreadyExists):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrConfirmationRequired),
		errors.Is(err, services.ErrInvalidBackup),
		errors.Is(err, services.ErrInvalidCSV),
		errors.Is(err, parser.ErrEmptyInput),
		errors.Is(err, quiz.ErrIndexOutOfRange),
		errors.Is(err, llm.ErrUnknownProvider):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNoProblemsAvailable),
		errors.Is(err, quiz.ErrNoProblems),
		errors.Is(err, quiz.ErrInvalidState),
		errors.Is(err, quiz.ErrSessionTimedOut):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, llm.ErrNoProvider),
		errors.Is(err, services.ErrEnvFileNotConfigured):
		status, message = http.StatusServiceUnavailable, err.Error()
	}

	if status == http.StatusInternalServerError {
		h.LogError(c, err, "Unhandled service error")
	}
	c.JSON(status, ErrorResponse{Message: message, Details: err.Error()})
}
