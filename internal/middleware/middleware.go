package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/robinjoseph08/golib/logger"
)

// LoggingMiddleware logs every RPC call made to the Telegram API.
func LoggingMiddleware(log logger.Logger) telegram.Middleware {
	return telegram.MiddlewareFunc(func(next tg.Invoker) telegram.InvokeFunc {
		return func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
			start := time.Now()
			method := extractMethodName(input)

			log.Debug("rpc call", logger.Data{"method": method})

			err := next.Invoke(ctx, input, output)

			data := logger.Data{"method": method, "duration": time.Since(start).String()}
			if err != nil {
				log.Err(err).Warn("rpc failed", data)
			} else {
				log.Debug("rpc done", data)
			}

			return err
		}
	})
}

// extractMethodName prefers the readable TL type name, then the type id.
func extractMethodName(input bin.Encoder) string {
	if typed, ok := input.(interface{ TypeName() string }); ok {
		return typed.TypeName()
	}

	if typed, ok := input.(interface{ TypeID() uint32 }); ok {
		return fmt.Sprintf("0x%x", typed.TypeID())
	}

	return "unknown"
}
