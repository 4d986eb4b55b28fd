package api

import (
	"github.com/gin-gonic/gin"

	"github.com/SalahElkadim/alc/internal/auth"
)

// SetupRoutes registers every endpoint. authn resolves bearer tokens and is
// applied to the whole API group; it may be nil in tests that inject claims.
func SetupRoutes(router *gin.Engine, handler *Handler, authn gin.HandlerFunc) {
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	if authn != nil {
		v1.Use(authn)
	}

	users := v1.Group("/users")
	{
		users.POST("/login", handler.Login)
		users.POST("/token/refresh", handler.RefreshToken)
		users.POST("/logout", auth.RequireAuth(), handler.Logout)
		users.GET("/sessions", auth.RequireAuth(), handler.ListSessions)
	}

	exams := v1.Group("/exams", auth.RequireStudent())
	{
		exams.POST("/generate", handler.GenerateExam)
		exams.POST("/submit", handler.SubmitExam)
		exams.GET("/results", handler.ExamResults)
	}

	payments := v1.Group("/payments")
	{
		payments.POST("/create", auth.RequireAuth(), handler.CreatePayment)
		payments.GET("/callback", handler.PaymentCallback)
		payments.POST("/webhook", handler.PaymentWebhook)
		payments.GET("/my-books", auth.RequireAuth(), handler.MyBooks)
		payments.GET("/:gateway_id/invoice", auth.RequireAuth(), handler.PaymentInvoice)
	}

	admin := v1.Group("/admin", auth.RequireAdmin())
	{
		admin.POST("/questions/import", handler.ImportQuestions)
		admin.POST("/payments/:gateway_id/refund", handler.RefundPayment)
	}
}
