package http

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/spec-kit/recipe-service/internal/auth"
	"github.com/spec-kit/recipe-service/internal/observability"
	apperrors "github.com/spec-kit/recipe-service/pkg/util/errorutil"
)

// MiddlewareConfig configures the global middleware chain.
type MiddlewareConfig struct {
	Timeout        time.Duration
	AllowedOrigins string
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "*",
	}))
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
				logFailure(logger, c, err, domainErr)

				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				for k, v := range domainErr.Headers {
					c.Set(k, v)
				}
				if domainErr.HTTPStatus == fiber.StatusUnauthorized {
					c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="api"`)
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// logFailure records the internal reason of a failure that the response hides.
func logFailure(logger *zap.Logger, c *fiber.Ctx, err error, domainErr *apperrors.DomainError) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		logger.Warn("auth failure",
			zap.String("path", c.Path()),
			zap.Stringer("kind", authErr.Kind),
			zap.String("reason", authErr.Reason),
			zap.NamedError("cause", authErr.Err),
		)
	case domainErr.HTTPStatus >= 500:
		logger.Error("request failed", zap.Error(domainErr))
	}
}
