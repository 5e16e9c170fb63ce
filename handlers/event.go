package handlers

import (
	"hackathon-engine/middleware"
	"hackathon-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEventRoutes(app *fiber.App, eventService *services.EventService, voteService *services.VoteService) {
	// 🔓 Public routes
	app.Get("/events", eventService.GetAllEvents)
	app.Get("/events/:id", eventService.GetEventByID)
	app.Get("/events/:id/results", eventService.GetResults)
	app.Get("/events/:id/leaderboard", voteService.GetLeaderboard)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Event lifecycle (organizer)
	secured.Post("/events", eventService.CreateEvent)
	secured.Post("/events/:id/publish", eventService.PublishEvent)
	secured.Patch("/events/:id/phase", eventService.TransitionPhase)
	secured.Post("/events/:id/deposit", eventService.ConfirmDeposit)

	// Participation
	secured.Post("/events/:id/register", eventService.Register)
	secured.Post("/events/:id/submissions", eventService.SubmitProject)

	// Judging
	secured.Post("/events/:id/judges", eventService.AssignJudge)
	secured.Post("/events/:id/votes", voteService.CastVote)
	secured.Get("/events/:id/votes/mine", voteService.GetMyVotes)
}
