package handlers

import (
	"event-attendance-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEventRoutes(app *fiber.App, eventService *services.EventService, volunteerService *services.VolunteerService) {
	app.Post("/events", eventService.CreateEvent)
	app.Get("/events", eventService.GetAllEvents)
	app.Get("/events/:id", eventService.GetEventByID)
	app.Put("/events/:id", eventService.UpdateEvent)
	app.Delete("/events/:id", eventService.DeleteEvent)

	app.Get("/events/:id/volunteers", volunteerService.GetEventVolunteers)
	app.Post("/events/:id/volunteers", volunteerService.CreateVolunteer)
	app.Put("/volunteers/:id", volunteerService.UpdateVolunteer)
	app.Delete("/volunteers/:id", volunteerService.DeleteVolunteer)
}
