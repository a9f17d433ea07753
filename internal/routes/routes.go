package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"biodata/internal/authz"
	"biodata/internal/handlers"
	"biodata/internal/middleware"
)

type Handlers struct {
	Access       *handlers.AccessHandler
	Applications *handlers.ApplicationHandler
	Admin        *handlers.AdminHandler
	AdminAuth    *handlers.AdminAuthHandler
	Import       *handlers.ImportHandler
}

type Options struct {
	JWTSecret []byte
	PhotoDir  string
	PhotoURL  string
}

func SetupRoutes(r *gin.Engine, h Handlers, opts Options) *gin.Engine {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if opts.PhotoDir != "" {
		r.Static(opts.PhotoURL, opts.PhotoDir)
	}

	api := r.Group("/api")

	// ---- public
	api.POST("/request-access", h.Access.RequestAccess)
	api.POST("/verify-otp", h.Access.VerifyOTP)
	api.POST("/access/request-access", h.Access.RequestAccess)
	api.POST("/access/verify-otp", h.Access.VerifyOTP)

	api.POST("/submit-application", h.Applications.Submit)
	api.GET("/applications", h.Applications.ListByContact)
	api.PUT("/applications/update", h.Applications.UpdateByContact)
	api.GET("/applications/by-year/:year", h.Applications.ByYear)
	api.POST("/upload-photo/:main_contact_number", h.Applications.UploadPhoto)
	api.GET("/grouped-by-gender", h.Applications.GroupedByGender)
	api.GET("/approved/:year", h.Applications.ApprovedByYear)
	api.PUT("/resubmit/:main_contact_number", h.Applications.Resubmit)

	api.POST("/admin/auth/login", h.AdminAuth.Login)

	// ---- admin (JWT, auditor is read-only)
	admin := api.Group("/admin", middleware.AdminAuth(opts.JWTSecret), middleware.ReadOnlyGuard())
	moderate := middleware.RequireRoles(authz.RoleAdmin, authz.RoleReviewer)
	{
		admin.GET("/applications", h.Admin.ListApplications)
		admin.GET("/applications/:unique_id", h.Admin.GetApplication)
		admin.GET("/applications/:unique_id/pdf", h.Admin.ApplicationPDF)
		admin.GET("/rejected-applications", h.Admin.ListRejected)
		admin.GET("/logs", h.Admin.ListLogs)

		admin.POST("/approve/:id", moderate, h.Admin.Approve)
		admin.POST("/reject/:unique_id", moderate, h.Admin.Reject)
		admin.PUT("/application/:unique_id", moderate, h.Admin.Edit)
		admin.DELETE("/application/:unique_id", moderate, h.Admin.Delete)
		admin.POST("/log-action", moderate, h.Admin.LogAction)
		admin.POST("/actions/log-action", moderate, h.Admin.LogAction)
		admin.POST("/upload-csv", moderate, h.Import.Upload)
	}

	// access requests
	{
		admin.GET("/access-requests", h.Access.ListAccessRequests)
		admin.PUT("/access-request/:id", moderate, h.Access.UpdateAccessRequest)
		admin.DELETE("/access-request/:id", moderate, h.Access.DeleteAccessRequest)
		admin.GET("/verified-users", h.Access.ListVerifiedUsers)
		admin.PUT("/verified-users/:id", moderate, h.Access.UpdateAccessRequest)
		admin.DELETE("/verified-users/:id", moderate, h.Access.DeleteAccessRequest)
	}

	return r
}
