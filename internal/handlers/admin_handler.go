package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

// AdminHandler serves account management, API key settings, backups and
// system information.
type AdminHandler struct {
	BaseHandler
	users     services.UserService
	settings  services.SettingsService
	backup    services.BackupService
	dashboard services.DashboardService
}

func NewAdminHandler(
	users services.UserService,
	settings services.SettingsService,
	backup services.BackupService,
	dashboard services.DashboardService,
	logger utils.Logger,
) *AdminHandler {
	return &AdminHandler{
		BaseHandler: NewBaseHandler(logger),
		users:       users,
		settings:    settings,
		backup:      backup,
		dashboard:   dashboard,
	}
}

// ===== USERS =====

// RegisterUser creates an account of any role
// @Summary Register user
// @Tags admin
// @Accept json
// @Produce json
// @Param request body services.RegisterUserRequest true "Account"
// @Success 201 {object} models.Profile
// @Failure 409 {object} ErrorResponse "Username taken"
// @Router /admin/users [post]
func (h *AdminHandler) RegisterUser(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.RegisterUserRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Registering user", "username", req.Username, "role", req.Role)

	profile, err := h.users.Register(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// ListUsers lists users with optional filtering
// @Summary List users
// @Tags admin
// @Produce json
// @Param role query string false "Filter by role (student, teacher, admin)"
// @Param created_by query string false "Filter by creator"
// @Param q query string false "Search query (username, name or email)"
// @Success 200 {object} map[string]interface{} "User list response"
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	filters := h.parseUserFilters(c)
	h.LogRequest(c, "Listing users")

	users, err := h.users.List(c.Request.Context(), filters, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.UpdateUserRequest
	if !h.bindJSON(c, &req) {
		return
	}

	target := c.Param("username")
	h.LogRequest(c, "Updating user", "target", target)

	profile, err := h.users.Update(c.Request.Context(), target, &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *AdminHandler) ResetPassword(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.ResetPasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	target := c.Param("username")
	h.LogRequest(c, "Resetting password", "target", target)

	if err := h.users.ResetPassword(c.Request.Context(), target, &req, username); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Password reset"})
}

// DeleteUser removes an account and what it owns
// @Summary Delete user
// @Tags admin
// @Param username path string true "Username"
// @Success 200 {object} SuccessResponse
// @Failure 422 {object} ErrorResponse "Cannot delete yourself"
// @Router /admin/users/{username} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	target := c.Param("username")
	h.LogRequest(c, "Deleting user", "target", target)

	if err := h.users.Delete(c.Request.Context(), target, username); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "User deleted"})
}

func (h *AdminHandler) parseUserFilters(c *gin.Context) repositories.UserFilters {
	filters := repositories.UserFilters{
		CreatedBy: c.Query("created_by"),
		Query:     strings.TrimSpace(c.Query("q")),
	}
	if role := models.UserRole(c.Query("role")); role.IsValid() {
		filters.Role = &role
	}
	return filters
}

// ===== API KEYS =====

// GetAPIKeys returns the configured keys, masked
// @Summary Get API keys
// @Tags admin
// @Produce json
// @Success 200 {object} services.APIKeysView
// @Router /admin/settings/api-keys [get]
func (h *AdminHandler) GetAPIKeys(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.APIKeys(c.Request.Context()))
}

func (h *AdminHandler) UpdateAPIKeys(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.APIKeysRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Updating API keys", "persist", req.Persist)

	view, err := h.settings.UpdateAPIKeys(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AdminHandler) ResetAPIKeys(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Resetting API keys")

	view, err := h.settings.ResetAPIKeys(c.Request.Context(), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// TestConnection sends a probe prompt to one provider. A failed probe is
// reported in the body, not as an error status.
// @Summary Test provider connection
// @Tags admin
// @Produce json
// @Param provider path string true "openai, gemini or perplexity"
// @Success 200 {object} llm.ConnectionResult
// @Failure 400 {object} ErrorResponse "Unknown provider"
// @Router /admin/settings/api-keys/{provider}/test [post]
func (h *AdminHandler) TestConnection(c *gin.Context) {
	provider := c.Param("provider")
	h.LogRequest(c, "Testing provider connection", "provider", provider)

	result, err := h.settings.TestConnection(c.Request.Context(), provider)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ===== BACKUP =====

// Backup downloads the whole document
// @Summary Download backup
// @Tags admin
// @Produce octet-stream
// @Param format query string false "json (default) or zip"
// @Success 200 {file} file
// @Router /admin/backup [get]
func (h *AdminHandler) Backup(c *gin.Context) {
	format := c.DefaultQuery("format", services.BackupFormatJSON)
	h.LogRequest(c, "Creating backup", "format", format)

	file, err := h.backup.Backup(c.Request.Context(), format)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.sendFile(c, file.Filename, file.ContentType, file.Data)
}

// Restore replaces the whole document with the uploaded backup. The query
// parameter confirm=true is required.
// @Summary Restore backup
// @Tags admin
// @Accept multipart/form-data
// @Produce json
// @Param confirm query bool true "Must be true"
// @Param file formData file true "JSON or ZIP backup"
// @Success 200 {object} services.RestoreSummary
// @Failure 400 {object} ErrorResponse "Missing confirmation or invalid backup"
// @Router /admin/restore [post]
func (h *AdminHandler) Restore(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	confirm, _ := strconv.ParseBool(c.Query("confirm"))

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Backup file is required",
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

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.LogError(c, err, "Failed to read upload")
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Failed to read upload"})
		return
	}

	summary, err := h.backup.Restore(c.Request.Context(), header.Filename, data, confirm, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ===== SYSTEM =====

func (h *AdminHandler) SystemInfo(c *gin.Context) {
	info, err := h.dashboard.SystemInfo(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}
