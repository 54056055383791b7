package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/services"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	DB            *gorm.DB
	Auth          *services.AuthService
	Users         *services.UserService
	Clients       *services.ClientService
	Missions      *services.MissionService
	Quotes        *services.QuoteService
	Invoices      *services.InvoiceService
	Audit         *services.AuditService
	Notifications *services.NotificationService
	Reports       *services.ReportService
	Messages      *services.MessageService
	Documents     *services.DocumentService
	Hub           *Hub

	CORSOrigin   string
	SecureCookie bool
	Version      string
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	health := healthHandler(d.DB, d.Version)
	// before CORS and logging so load balancer health checks stay cheap
	r.GET("/health", health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(RequestLogger())
	r.Use(Metrics())
	r.Use(CORS(d.CORSOrigin))

	authController := NewAuthController(d.Auth, d.Users, d.SecureCookie)
	userController := NewUserController(d.Users)
	clientController := NewClientController(d.Clients)
	missionController := NewMissionController(d.Missions)
	quoteController := NewQuoteController(d.Quotes, d.Invoices)
	invoiceController := NewInvoiceController(d.Invoices)
	auditController := NewAuditController(d.Audit)
	notificationController := NewNotificationController(d.Notifications)
	reportController := NewReportController(d.Reports)
	messageController := NewMessageController(d.Messages)
	documentController := NewDocumentController(d.Documents)
	wsController := NewWSController(d.Hub, d.Notifications, d.CORSOrigin)

	apiGroup := r.Group("/api/v1")
	apiGroup.GET("/health", health)
	apiGroup.POST("/auth/login", authController.Login)
	apiGroup.POST("/auth/logout", authController.Logout)

	authed := apiGroup.Group("")
	authed.Use(RequireAuth(d.Auth))
	{
		authed.GET("/auth/me", authController.Me)
		authed.PUT("/auth/password", authController.ChangePassword)

		userGroup := authed.Group("/users")
		userGroup.Use(RequireCapability(authz.UserManage))
		{
			userGroup.GET("", userController.GetUsers)
			userGroup.POST("", userController.CreateUser)
			userGroup.PUT("/:id", userController.UpdateUser)
			userGroup.DELETE("/:id", userController.DeleteUser)
		}
		authed.GET("/technicians", userController.GetTechnicians)

		clientGroup := authed.Group("/clients")
		{
			clientGroup.GET("", clientController.GetClients)
			clientGroup.POST("", clientController.CreateClient)
			clientGroup.GET("/:id", clientController.GetClient)
			clientGroup.PUT("/:id", clientController.UpdateClient)
			clientGroup.DELETE("/:id", clientController.DeleteClient)
		}

		missionGroup := authed.Group("/missions")
		{
			missionGroup.GET("", missionController.GetMissions)
			missionGroup.POST("", missionController.CreateMission)
			missionGroup.GET("/:id", missionController.GetMission)
			missionGroup.PUT("/:id", missionController.UpdateMission)
			missionGroup.GET("/:id/interventions", missionController.GetInterventions)
			missionGroup.POST("/:id/interventions", missionController.AddIntervention)
		}
		authed.PUT("/interventions/:id", missionController.UpdateIntervention)

		quoteGroup := authed.Group("/devis")
		{
			quoteGroup.GET("", quoteController.GetQuotes)
			quoteGroup.POST("", quoteController.CreateQuote)
			quoteGroup.GET("/:id", quoteController.GetQuote)
			quoteGroup.PUT("/:id", quoteController.UpdateQuote)
			quoteGroup.DELETE("/:id", quoteController.DeleteQuote)
			quoteGroup.POST("/:id/submit", quoteController.SubmitQuote)
			quoteGroup.POST("/:id/validate", quoteController.ValidateQuote)
			quoteGroup.POST("/:id/client-response", quoteController.ClientResponse)
			quoteGroup.POST("/:id/facture", quoteController.CreateInvoice)
		}

		invoiceGroup := authed.Group("/factures")
		{
			invoiceGroup.GET("", invoiceController.GetInvoices)
			invoiceGroup.GET("/:id", invoiceController.GetInvoice)
			invoiceGroup.PUT("/:id", invoiceController.UpdateInvoice)
			invoiceGroup.POST("/:id/status", invoiceController.UpdateInvoiceStatus)
			invoiceGroup.POST("/:id/pay", invoiceController.PayInvoice)
		}

		authed.GET("/audit-logs", RequireCapability(authz.AuditRead), auditController.GetAuditLogs)

		notificationGroup := authed.Group("/notifications")
		{
			notificationGroup.GET("", notificationController.GetNotifications)
			notificationGroup.POST("/read-all", notificationController.MarkAllRead)
			notificationGroup.POST("/:id/read", notificationController.MarkRead)
		}

		messageGroup := authed.Group("/messages")
		{
			messageGroup.GET("", messageController.GetMessages)
			messageGroup.POST("", messageController.SendMessage)
			messageGroup.GET("/:id", messageController.GetMessage)
			messageGroup.POST("/:id/read", messageController.MarkRead)
		}

		documentGroup := authed.Group("/documents")
		{
			documentGroup.GET("", documentController.GetDocuments)
			documentGroup.POST("", documentController.AttachDocument)
			documentGroup.GET("/:id", documentController.GetDocument)
			documentGroup.DELETE("/:id", documentController.DeleteDocument)
		}

		reportGroup := authed.Group("/reports")
		reportGroup.Use(RequireCapability(authz.ReportRead))
		{
			reportGroup.GET("/dashboard", reportController.GetDashboard)
			reportGroup.GET("/factures.xlsx", reportController.ExportInvoices)
		}

		authed.GET("/ws", wsController.ServeWS)
	}

	return r
}

func healthHandler(db *gorm.DB, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, database := http.StatusOK, "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, database = http.StatusServiceUnavailable, "unavailable"
		}
		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"service":  "progitek-api",
			"version":  version,
			"database": database,
		})
	}
}
