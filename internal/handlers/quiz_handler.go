package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

type QuizHandler struct {
	BaseHandler
	service services.QuizService
}

func NewQuizHandler(service services.QuizService, logger utils.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// StartQuiz starts a new session for the caller, replacing any session in
// progress.
// @Summary Start quiz
// @Tags quiz
// @Accept json
// @Produce json
// @Param request body services.StartQuizRequest true "Selection"
// @Success 201 {object} services.QuizView
// @Failure 409 {object} ErrorResponse "No problems match the selection"
// @Router /quiz/sessions [post]
func (h *QuizHandler) StartQuiz(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.StartQuizRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Starting quiz", "random", req.Random, "count", req.Count)

	view, err := h.service.Start(c.Request.Context(), &req, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *QuizHandler) CurrentQuiz(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	view, err := h.service.Current(c.Request.Context(), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *QuizHandler) GetQuiz(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), c.Param("id"), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SubmitAnswer records the answer for one question
// @Summary Answer question
// @Tags quiz
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Question index (zero-based)"
// @Success 200 {object} quiz.Status
// @Failure 409 {object} ErrorResponse "Session submitted or timed out"
// @Router /quiz/sessions/{id}/answers/{index} [put]
func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}
	index, ok := h.parseIndexParam(c, "index")
	if !ok {
		return
	}

	var req validator.AnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	status, err := h.service.Answer(c.Request.Context(), c.Param("id"), index, req.Answer, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *QuizHandler) Navigate(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req validator.NavigateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	status, err := h.service.Navigate(c.Request.Context(), c.Param("id"), req.Index, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// SubmitQuiz ends the session. Unanswered questions come back as a warning
// rather than an error.
// @Summary Submit quiz
// @Tags quiz
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SubmitResponse
// @Router /quiz/sessions/{id}/submit [post]
func (h *QuizHandler) SubmitQuiz(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Submitting quiz", "session_id", id)

	resp, err := h.service.Submit(c.Request.Context(), id, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *QuizHandler) Results(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	results, err := h.service.Results(c.Request.Context(), c.Param("id"), username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// Feedback asks the providers to comment on an open-ended answer. Without a
// provider the reply is a canned heuristic.
// @Summary Answer feedback
// @Tags quiz
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Question index (zero-based)"
// @Success 200 {object} services.FeedbackResponse
// @Router /quiz/sessions/{id}/results/{index}/feedback [post]
func (h *QuizHandler) Feedback(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}
	index, ok := h.parseIndexParam(c, "index")
	if !ok {
		return
	}

	h.LogRequest(c, "Requesting feedback", "session_id", c.Param("id"), "index", index)

	resp, err := h.service.Feedback(c.Request.Context(), c.Param("id"), index, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *QuizHandler) SaveRecord(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	h.LogRequest(c, "Saving quiz record", "session_id", id)

	summary, err := h.service.SaveRecord(c.Request.Context(), id, username)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, summary)
}

func (h *QuizHandler) ResetQuiz(c *gin.Context) {
	username, ok := h.currentUser(c)
	if !ok {
		return
	}

	if err := h.service.Reset(c.Request.Context(), c.Param("id"), username); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Quiz session discarded"})
}
