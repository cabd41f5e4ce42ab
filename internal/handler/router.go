package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/middleware"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/repository"
	"github.com/camatch/camatch-api/internal/service"
	"github.com/camatch/camatch-api/pkg/config"
	"github.com/camatch/camatch-api/pkg/logger"
	corsmiddleware "github.com/camatch/camatch-api/pkg/middleware/cors"
	reqidmiddleware "github.com/camatch/camatch-api/pkg/middleware/requestid"
)

// RouterDeps bundles everything route registration needs.
type RouterDeps struct {
	Config      *config.Config
	Logger      *zap.Logger
	AuthService *service.AuthService
	Metrics     *service.MetricsService
	AuditRepo   *repository.UserRepository

	Auth       *AuthHandler
	Students   *StudentHandler
	Professors *ProfessorHandler
	Admin      *AdminHandler
	Users      *UserHandler
	Exports    *ExportHandler
	Feedback   *FeedbackHandler
	Analytics  *AnalyticsHandler
	Health     *HealthHandler
}

// NewRouter assembles the gin engine: global middleware, probes, and the
// role-scoped API groups.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.Health.Live)
	r.GET("/ready", deps.Health.Ready)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.Config.APIPrefix)
	requireAuth := middleware.JWT(deps.AuthService)

	auth := api.Group("/auth")
	{
		auth.POST("/register", deps.Auth.Register)
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)

		session := auth.Group("", requireAuth)
		session.POST("/logout", deps.Auth.Logout)
		session.GET("/me", deps.Auth.Me)
	}

	students := api.Group("/students", requireAuth, middleware.RequireRoles(models.RoleStudent))
	{
		students.GET("/me", deps.Students.Me)
		students.PATCH("/me", deps.Students.UpdateMe)
		students.GET("/courses", deps.Students.Catalog)

		students.GET("/me/preferences", deps.Students.ListPreferences)
		students.PUT("/me/preferences", deps.Students.ReplacePreferences)
		students.POST("/me/preferences", deps.Students.AddPreference)
		students.DELETE("/me/preferences/:id", deps.Students.RemovePreference)

		students.POST("/me/documents/:kind", deps.Students.UploadDocument)
		students.GET("/me/documents/:kind/url", deps.Students.DocumentURL)
		students.GET("/documents/:kind/download", deps.Students.DownloadDocument)
	}

	professors := api.Group("/professors", requireAuth, middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin))
	{
		professors.GET("/me", deps.Professors.Me)
		professors.GET("/me/courses", deps.Professors.Courses)
		professors.GET("/students/search", deps.Professors.SearchStudents)

		professors.GET("/courses/:id/applications", deps.Professors.Applications)
		professors.GET("/courses/:id/roster", deps.Professors.Roster)
		professors.POST("/courses/:id/assignments", deps.Professors.OverrideAssign)
		professors.DELETE("/courses/:id/assignments/:assignmentId", deps.Professors.RemoveAssignment)
		professors.POST("/courses/:id/preferences/:preferenceId/highlight", deps.Professors.ToggleHighlight)

		professors.POST("/feedback", deps.Feedback.Submit)
	}

	courses := api.Group("/courses", requireAuth, middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin))
	{
		courses.GET("/:id/feedback/summary", deps.Feedback.CourseSummary)
	}

	admin := api.Group("/admin", requireAuth, middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/courses", deps.Admin.ListCourses)
		admin.POST("/courses",
			middleware.Audit(deps.AuditRepo, models.AuditActionCourseCreate, "courses"),
			deps.Admin.CreateCourse)
		admin.GET("/courses/:id", deps.Admin.GetCourse)
		admin.PUT("/courses/:id",
			middleware.Audit(deps.AuditRepo, models.AuditActionCourseUpdate, "courses"),
			deps.Admin.UpdateCourse)
		admin.DELETE("/courses/:id",
			middleware.Audit(deps.AuditRepo, models.AuditActionCourseDelete, "courses"),
			deps.Admin.DeleteCourse)
		admin.POST("/courses/import", deps.Admin.ImportCourses)

		admin.POST("/matching/run", deps.Admin.RunMatching)

		admin.GET("/assignments", deps.Admin.ListAssignments)
		admin.POST("/assignments", deps.Admin.CreateAssignment)
		admin.DELETE("/assignments/:id", deps.Admin.RevokeAssignment)

		admin.POST("/communications",
			middleware.Audit(deps.AuditRepo, models.AuditActionCommunication, "communications"),
			deps.Admin.ComposeCommunication)

		admin.GET("/users", deps.Users.List)
		admin.POST("/users", deps.Users.Create)
		admin.GET("/users/:id", deps.Users.Get)
		admin.PUT("/users/:id", deps.Users.Update)
		admin.DELETE("/users/:id", deps.Users.Deactivate)

		admin.GET("/analytics/overview", deps.Analytics.Overview)

		admin.POST("/exports", deps.Exports.Queue)
		admin.GET("/exports", deps.Exports.List)
		admin.GET("/exports/:id", deps.Exports.Status)
	}

	// The export download link must work from a plain browser GET, so it
	// lives outside the admin group. The signed token in the query string
	// is the credential; a session, when present, only enriches the logs.
	api.GET("/admin/exports/:id/download", middleware.OptionalJWT(deps.AuthService), deps.Exports.Download)

	return r
}
