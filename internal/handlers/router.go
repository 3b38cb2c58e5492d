package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

type HandlerManager struct {
	authHandler    *AuthHandler
	problemHandler *ProblemHandler
	quizHandler    *QuizHandler
	studentHandler *StudentHandler
	adminHandler   *AdminHandler
	authMiddleware *AuthMiddleware
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	return &HandlerManager{
		authHandler:    NewAuthHandler(serviceManager.Auth(), logger),
		problemHandler: NewProblemHandler(serviceManager.Problem(), serviceManager.Generation(), logger),
		quizHandler:    NewQuizHandler(serviceManager.Quiz(), logger),
		studentHandler: NewStudentHandler(serviceManager.Student(), serviceManager.User(), serviceManager.Grading(), logger),
		adminHandler: NewAdminHandler(
			serviceManager.User(),
			serviceManager.Settings(),
			serviceManager.Backup(),
			serviceManager.Dashboard(),
			logger,
		),
		authMiddleware: NewAuthMiddleware(serviceManager.Auth(), casdoorConfig, logger),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	teacherOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher)
	adminOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin)

	v1 := router.Group("/api/v1")

	// Login is the only public API route
	v1.POST("/auth/login", hm.authHandler.Login)

	api := v1.Group("")
	api.Use(hm.authMiddleware.Authenticate())
	{
		auth := api.Group("/auth")
		{
			auth.POST("/logout", hm.authHandler.Logout)
			auth.GET("/me", hm.authHandler.Me)
			auth.PUT("/password", hm.authHandler.ChangePassword)
		}

		// Problem routes: reads for everyone, writes for teachers and admins
		problems := api.Group("/problems")
		{
			problems.GET("", hm.problemHandler.ListProblems)
			problems.GET("/csv/template", hm.problemHandler.CSVTemplate)
			problems.GET("/export.xlsx", teacherOnly, hm.problemHandler.ExportXLSX)
			problems.GET("/:id", hm.problemHandler.GetProblem)

			problems.POST("", teacherOnly, hm.problemHandler.CreateProblem)
			problems.PUT("/:id", teacherOnly, hm.problemHandler.UpdateProblem)
			problems.DELETE("/:id", teacherOnly, hm.problemHandler.DeleteProblem)
			problems.POST("/import/text", teacherOnly, hm.problemHandler.ImportText)
			problems.POST("/import/csv", teacherOnly, hm.problemHandler.ImportCSV)

			// AI generation
			problems.POST("/generate", teacherOnly, hm.problemHandler.GenerateProblems)
			problems.GET("/drafts/:id", teacherOnly, hm.problemHandler.GetDraft)
			problems.POST("/drafts/:id/save", teacherOnly, hm.problemHandler.SaveDraft)
		}

		// Quiz routes: students, and teachers trying their own problems
		sessions := api.Group("/quiz/sessions")
		{
			sessions.POST("", hm.quizHandler.StartQuiz)
			sessions.GET("/current", hm.quizHandler.CurrentQuiz)
			sessions.GET("/:id", hm.quizHandler.GetQuiz)
			sessions.PUT("/:id/answers/:index", hm.quizHandler.SubmitAnswer)
			sessions.PUT("/:id/page", hm.quizHandler.Navigate)
			sessions.POST("/:id/submit", hm.quizHandler.SubmitQuiz)
			sessions.GET("/:id/results", hm.quizHandler.Results)
			sessions.POST("/:id/results/:index/feedback", hm.quizHandler.Feedback)
			sessions.POST("/:id/save", hm.quizHandler.SaveRecord)
			sessions.DELETE("/:id", hm.quizHandler.ResetQuiz)
		}

		records := api.Group("/records")
		{
			records.GET("/me", hm.studentHandler.GetMyRecord)
			records.GET("/me/stats", hm.studentHandler.GetMyStats)
		}

		teacher := api.Group("/teacher")
		teacher.Use(teacherOnly)
		{
			teacher.POST("/students", hm.studentHandler.RegisterStudent)
			teacher.GET("/students", hm.studentHandler.ListStudents)
			teacher.DELETE("/students/:username", hm.studentHandler.DeleteStudent)
			teacher.GET("/students/:username/records", hm.studentHandler.GetStudentRecord)
			teacher.GET("/students/:username/stats", hm.studentHandler.GetStudentStats)
			teacher.PUT("/students/:username/records/:index/grade", hm.studentHandler.GradeAnswer)
			teacher.GET("/records/export.xlsx", hm.studentHandler.ExportRecords)
		}

		admin := api.Group("/admin")
		admin.Use(adminOnly)
		{
			admin.POST("/users", hm.adminHandler.RegisterUser)
			admin.GET("/users", hm.adminHandler.ListUsers)
			admin.PUT("/users/:username", hm.adminHandler.UpdateUser)
			admin.PUT("/users/:username/password", hm.adminHandler.ResetPassword)
			admin.DELETE("/users/:username", hm.adminHandler.DeleteUser)

			admin.GET("/settings/api-keys", hm.adminHandler.GetAPIKeys)
			admin.PUT("/settings/api-keys", hm.adminHandler.UpdateAPIKeys)
			admin.DELETE("/settings/api-keys", hm.adminHandler.ResetAPIKeys)
			admin.POST("/settings/api-keys/:provider/test", hm.adminHandler.TestConnection)

			admin.GET("/backup", hm.adminHandler.Backup)
			admin.POST("/restore", hm.adminHandler.Restore)
			admin.GET("/system", hm.adminHandler.SystemInfo)
		}
	}

	// Health check endpoint
	router.GET("/health", hm.health)
}

func (hm *HandlerManager) health(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "english-practice-service",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "english-practice-service",
	})
}
