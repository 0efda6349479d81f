package handlers

import (
	"event-attendance-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAttendanceRoutes(app *fiber.App, attendanceService *services.AttendanceService, participantService *services.ParticipantService) {
	// Marking and per-row operations
	app.Post("/attendance", attendanceService.MarkAttendance)
	app.Delete("/attendance/:id", attendanceService.DeleteAttendance)

	// Event-scoped attendance
	app.Get("/events/:id/attendance", attendanceService.GetEventAttendance)
	app.Get("/events/:id/attendance/export", attendanceService.ExportEventAttendance)
	app.Delete("/events/:id/attendance", attendanceService.DeleteAllAttendanceEndpoint)
	app.Delete("/events/:id/attendance/selected", attendanceService.DeleteSelectedAttendanceEndpoint)
	app.Post("/events/:id/attendance/undo-delete", attendanceService.UndoDeleteAttendanceEndpoint)

	// Participants
	app.Get("/participants", participantService.ListParticipants)
	app.Post("/events/:id/participants", participantService.RegisterParticipant)
	app.Post("/events/:id/participants/import", participantService.ImportParticipants)
	app.Delete("/events/:id/participants", participantService.DeleteAllParticipantsEndpoint)
	app.Delete("/events/:id/participants/selected", participantService.DeleteSelectedParticipantsEndpoint)
	app.Post("/events/:id/participants/undo-delete", participantService.UndoDeleteParticipantsEndpoint)
}
