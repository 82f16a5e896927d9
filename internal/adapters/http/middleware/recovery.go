package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

// PanicHook receives the recovered value and stack of a handler panic.
type PanicHook func(recovered any, stack []byte)

// Recovery returns middleware that turns a handler panic into a 500 error
// envelope and logs it with the stack at ERROR. Hooks run after logging,
// in order. It must be first in the chain to cover every later handler.
func Recovery(logger *slog.Logger, hooks ...PanicHook) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			stack := debug.Stack()
			traceID := dto.GetTraceID(c)

			logging.FromContextOr(c.Request.Context(), logger).Error("panic recovered",
				slog.Any("error", r),
				slog.String("stack", string(stack)),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("trace_id", traceID),
			)

			for _, hook := range hooks {
				hook(r, stack)
			}

			if c.Writer.Written() {
				c.Abort()
				return
			}

			dto.AbortWithErrorCode(c, dto.ErrorCodeInternal, "an internal error occurred")
		}()

		c.Next()
	}
}
