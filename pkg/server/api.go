package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
	"github.com/teslashibe/go-daltonize/pkg/session"
)

// registerAPIRoutes registers the session management API.
func (s *Server) registerAPIRoutes(api fiber.Router) {
	api.Get("/deficiencies", func(c *fiber.Ctx) error {
		return c.JSON(deficiency.Names())
	})

	sessions := api.Group("/sessions")

	// List live sessions
	sessions.Get("/", func(c *fiber.Ctx) error {
		list := s.registry.Sessions()
		return c.JSON(fiber.Map{
			"sessions": list,
			"count":    len(list),
		})
	})

	// Registry-wide counters
	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.registry.Stats())
	})

	sessions.Get("/:id", func(c *fiber.Ctx) error {
		sess, ok := s.registry.Get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.JSON(sess.Stats())
	})

	// Change a session's parameters out of band
	sessions.Post("/:id/params", func(c *fiber.Ctx) error {
		var req struct {
			Deficiency string   `json:"deficiency"`
			Strength   *float64 `json:"strength"`
		}
		if err := c.BodyParser(&req); err != nil {
			return &recolor.InputError{Err: err}
		}
		id := c.Params("id")
		if err := s.registry.OnParams(id, session.Update{Deficiency: req.Deficiency, Strength: req.Strength}); err != nil {
			return err
		}
		sess, ok := s.registry.Get(id)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.JSON(sess.Stats())
	})

	// Close a session
	sessions.Delete("/:id", func(c *fiber.Ctx) error {
		if !s.registry.Destroy(c.Params("id")) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
