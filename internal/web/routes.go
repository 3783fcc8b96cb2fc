package web

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/classmark/internal/web/handlers"
	"github.com/kozaktomas/classmark/internal/web/middleware"
)

func (s *Server) setupRoutes(services Services) {
	// Create handlers
	authHandler := handlers.NewAuthHandler(services.Teachers, services.Students, services.Resolver, s.loginManager)
	studentsHandler := handlers.NewStudentsHandler(services.Students, services.Branches, services.Embedder, services.Index)
	sessionsHandler := handlers.NewSessionsHandler(services.Sessions, services.Audit,
		time.Duration(s.config.Session.DefaultDurationMinutes)*time.Minute)
	attendanceHandler := handlers.NewAttendanceHandler(services.Pipeline, services.Marks)
	timetableHandler := handlers.NewTimetableHandler(s.config.Timetable)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes
		r.Post("/auth/teacher/login", authHandler.TeacherLogin)
		r.Post("/auth/student/login", authHandler.StudentLogin)
		r.Post("/auth/student/face-login", authHandler.StudentFaceLogin)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// All other routes require authentication
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.loginManager))

			// Directory
			r.Get("/branches", studentsHandler.Branches)
			r.Get("/students", studentsHandler.List)
			r.Get("/students/{roll}/card", studentsHandler.QRCard)

			// Sessions
			r.Get("/sessions/active", sessionsHandler.Active)

			// Attendance marking and reads
			r.Post("/attendance/face", attendanceHandler.MarkFace)
			r.Post("/attendance/qr", attendanceHandler.MarkQR)
			r.Get("/attendance/day", attendanceHandler.DayMarks)
			r.Get("/attendance/stats", attendanceHandler.Stats)

			// Timetable
			r.Get("/timetable/today", timetableHandler.Today)
			r.Get("/timetable/week", timetableHandler.Week)

			// Teacher-only operations
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireTeacher)

				r.Post("/students/register", studentsHandler.Register)
				r.Post("/sessions/open", sessionsHandler.Open)
				r.Post("/sessions/close", sessionsHandler.Close)
				r.Get("/sessions/attempts", sessionsHandler.Attempts)
			})
		})
	})
}
