package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{Logger: zaptest.NewLogger(t)}))
	app.Post("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	cases := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"valid json", "application/json", `{"model":"dense"}`, fiber.StatusNoContent},
		{"charset suffix", "application/json; charset=utf-8", `{}`, fiber.StatusNoContent},
		{"empty body", "", "", fiber.StatusNoContent},
		{"form body", "application/x-www-form-urlencoded", "a=b", fiber.StatusUnsupportedMediaType},
		{"broken json", "application/json", `{"model":`, fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
