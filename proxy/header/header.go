// Package header applies the relay's client-facing response headers.
//
// The relay sits between an OpenAI-compatible client and the Z.ai backend
// like so:
//
//	Client <--> Relay <--> Z.ai backend
//
// The backend leg carries its own browser-mimicking header set (see
// pkg/upstream); this package owns the client leg, which is open CORS so
// web-based OpenAI clients can call the relay directly.
package header

import "github.com/gofiber/fiber/v2"

// CORS returns middleware that marks every response as cross-origin
// callable and short-circuits preflight requests.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
