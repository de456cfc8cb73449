package routes

import (
	"net/http"

	"github.com/qabox/qabox/internal/app"
	"github.com/qabox/qabox/internal/handler"
	"github.com/qabox/qabox/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	home := handler.NewHomeHandler(app.Cfg.AppName)
	questions := handler.NewQuestionHandler(app.QuestionService)
	uploads := handler.NewUploadHandler(app.UploadService)
	admin := handler.NewAdminHandler(app.AuthService, app.QuestionService, app.UploadService, app.BackupManager)

	requireAdmin := middleware.RequireAdmin(app.AuthService)
	optionalAdmin := middleware.OptionalAdmin(app.AuthService)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	// Liveness
	mux.HandleFunc("GET /{$}", home.Root)
	mux.HandleFunc("GET /health", home.Health)

	// Uploaded files
	if app.Cfg.ServeUploads {
		uploadPrefix := app.Uploads.URLPrefix() + "/"
		fileServer := http.FileServer(noDirListing{http.Dir(app.Uploads.Root())})
		mux.Handle("GET "+uploadPrefix, http.StripPrefix(uploadPrefix, fileServer))
	}

	// Uploads (admins bypass the size cap)
	mux.HandleFunc("POST /api/upload", optionalAdmin(uploads.Upload))

	// Questions
	mux.HandleFunc("POST /api/questions", questions.Create)
	mux.HandleFunc("POST /api/questions/revoke", questions.Revoke)
	mux.HandleFunc("POST /api/questions/batch", questions.Batch)
	mux.HandleFunc("GET /api/questions/{id}", questions.Get)
	mux.HandleFunc("GET /api/public/questions", questions.ListPublic)

	// ============================================================================
	// ADMIN ROUTES (/api{prefix}/*)
	// ============================================================================

	prefix := "/api" + app.Cfg.AdminRoutePrefix

	// Session
	mux.HandleFunc("POST "+prefix+"/login", admin.Login)
	mux.HandleFunc("POST "+prefix+"/verify", requireAdmin(admin.Verify))

	// Questions
	mux.HandleFunc("GET "+prefix+"/questions", requireAdmin(admin.ListQuestions))
	mux.HandleFunc("PUT "+prefix+"/questions/{id}", requireAdmin(admin.UpdateQuestion))
	mux.HandleFunc("POST "+prefix+"/questions/{id}/answer", requireAdmin(admin.AnswerQuestion))
	mux.HandleFunc("DELETE "+prefix+"/questions/{id}", requireAdmin(admin.DeleteQuestion))

	// Housekeeping
	mux.HandleFunc("GET "+prefix+"/backups", requireAdmin(admin.ListBackups))
	mux.HandleFunc("POST "+prefix+"/backups", requireAdmin(admin.CreateBackup))
	mux.HandleFunc("POST "+prefix+"/uploads/cleanup", requireAdmin(admin.CleanupUploads))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	// 404
	mux.HandleFunc("/{path...}", home.NotFound)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.CORS(app.Cfg.CORSAllowedOrigins), // Answers preflights before routing
	)

	return handler
}
