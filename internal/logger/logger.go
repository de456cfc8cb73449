package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Init installs the process-wide slog logger.
// Development: text to stdout at Debug.
// Production: JSON to stdout at Info.
// With a Sentry DSN, records at Error and above are also reported to Sentry.
func Init(isDev bool, env, sentryDSN string) *slog.Logger {
	handlers := []slog.Handler{stdoutHandler(isDev)}

	if sentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: env,
		})
		if err != nil {
			// Keep stdout logging working even if Sentry is misconfigured
			slog.New(handlers[0]).Warn("sentry init failed, continuing without it", "error", err)
		} else {
			handlers = append(handlers, slogsentry.Option{
				Level: slog.LevelError,
			}.NewSentryHandler())
		}
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	log := slog.New(handler).With("app", "qabox")
	slog.SetDefault(log)
	return log
}

func stdoutHandler(isDev bool) slog.Handler {
	if isDev {
		return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
}

// Flush delivers buffered Sentry events before the process exits.
func Flush() {
	sentry.Flush(2 * time.Second)
}
