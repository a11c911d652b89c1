// Package router assembles the gin engine for the CRAMS API.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/internal/handler"
	"github.com/noah-isme/crams-api/internal/middleware"
	"github.com/noah-isme/crams-api/internal/models"
	"github.com/noah-isme/crams-api/pkg/config"
	"github.com/noah-isme/crams-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/crams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/crams-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Courses       *handler.CourseHandler
	Registrations *handler.RegistrationHandler
	Review        *handler.ReviewHandler
	Notifications *handler.NotificationHandler
	Metrics       *handler.MetricsHandler
}

// Dependencies are the cross-cutting collaborators used by middleware.
type Dependencies struct {
	Tokens   middleware.TokenValidator
	Observer middleware.RequestObserver
	Audit    middleware.AuditRecorder
	Logger   *zap.Logger
}

// New builds the engine with global middleware, ops endpoints and the versioned API group.
func New(cfg *config.Config, h Handlers, deps Dependencies) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if deps.Observer != nil {
		r.Use(middleware.Metrics(deps.Observer))
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/register", h.Users.Register)
	auth.GET("/me", middleware.JWT(deps.Tokens), h.Auth.Me)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	registerRegistrationRoutes(secured, h, deps)
	registerCourseRoutes(secured, h)
	registerNotificationRoutes(secured, h)

	secured.GET("/users/directory", middleware.RequireCapability(models.CapNotificationSend), h.Users.Directory)

	users := secured.Group("/users", middleware.RequireCapability(models.CapUserManage))
	users.GET("", h.Users.List)
	users.POST("", h.Users.Create)
	users.DELETE("/:id", h.Users.Delete)

	return r
}

func registerRegistrationRoutes(rg *gin.RouterGroup, h Handlers, deps Dependencies) {
	submit := middleware.RequireCapability(models.CapRegistrationSubmit)
	list := middleware.RequireCapability(models.CapRegistrationList)
	review := middleware.RequireCapability(models.CapRegistrationReview)

	regs := rg.Group("/registrations")
	regs.POST("", submit, h.Registrations.Create)
	regs.GET("/me", submit, h.Registrations.Mine)
	regs.PUT("/:id", submit, h.Registrations.Resubmit)
	regs.GET("", list, h.Registrations.List)
	regs.GET("/export", list,
		middleware.Audit(deps.Audit, deps.Logger, models.AuditActionRegistrationExport, "registration"),
		h.Registrations.Export)
	regs.POST("/conflicts", middleware.RequireCapability(models.CapCatalogRead), h.Registrations.CheckConflicts)

	regs.POST("/:id/courses/:courseId/approve", review, h.Review.ApproveCourse)
	regs.POST("/:id/courses/:courseId/reject", review, h.Review.RejectCourse)
	regs.POST("/:id/bulk-action", review, h.Review.Bulk)
	regs.POST("/:id/approve", review, h.Review.ApproveAll)
	regs.POST("/:id/reject", review, h.Review.RejectAll)
}

func registerCourseRoutes(rg *gin.RouterGroup, h Handlers) {
	read := middleware.RequireCapability(models.CapCatalogRead)
	manage := middleware.RequireCapability(models.CapCatalogManage)

	courses := rg.Group("/courses")
	courses.GET("", read, h.Courses.List)
	courses.GET("/:id", read, h.Courses.Get)
	courses.POST("", manage, h.Courses.Create)
	courses.PUT("/:id", manage, h.Courses.Update)
	courses.DELETE("/:id", manage, h.Courses.Delete)
}

func registerNotificationRoutes(rg *gin.RouterGroup, h Handlers) {
	notifications := rg.Group("/notifications")
	notifications.GET("", h.Notifications.List)
	notifications.PUT("/mark-all-read", h.Notifications.MarkAllRead)
	notifications.PUT("/:id/read", h.Notifications.MarkRead)
	notifications.DELETE("/:id", h.Notifications.Delete)
	notifications.POST("/send", middleware.RequireCapability(models.CapNotificationSend), h.Notifications.Send)
}
