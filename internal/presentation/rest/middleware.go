package rest

import (
	"strings"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const adminSubjectKey = "adminSubject"

// AdminAuth accepts HS256 bearer tokens signed with secret. An empty secret
// disables the operator routes entirely.
func AdminAuth(secret []byte) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *fiber.Ctx) error {
		if len(secret) == 0 {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access is disabled"})
		}

		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "missing bearer token"})
		}

		var claims jwt.RegisteredClaims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid token"})
		}

		c.Locals(adminSubjectKey, claims.Subject)
		return c.Next()
	}
}
