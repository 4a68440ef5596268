package proxy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/healthmesh/meshgate/internal/config"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatAuto    = "auto"
)

type ctxKey string

// RequestIDKey is the context key for request IDs.
const RequestIDKey ctxKey = "request_id"

// NewLogger creates a zerolog.Logger from LoggingConfig.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	output, outputFile, err := selectOutput(cfg.Output)
	if err != nil {
		return zerolog.Logger{}, err
	}

	tty := outputFile != nil && isatty.IsTerminal(outputFile.Fd())
	if useConsole(cfg, tty) {
		output = buildConsoleWriter(output, cfg.Pretty || tty)
	}

	logger := zerolog.New(output).
		Level(cfg.ParseLevel()).
		With().
		Timestamp().
		Str("service", "meshgate").
		Logger()

	return logger, nil
}

// selectOutput returns the output writer and file handle for the given output config.
func selectOutput(outputCfg string) (io.Writer, *os.File, error) {
	switch outputCfg {
	case "", "stdout":
		return os.Stdout, os.Stdout, nil
	case "stderr":
		return os.Stderr, os.Stderr, nil
	default:
		outputCfg = filepath.Clean(outputCfg)
		f, err := os.OpenFile(outputCfg, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		return f, f, nil
	}
}

// useConsole reports whether human-readable output should be used.
func useConsole(cfg config.LoggingConfig, tty bool) bool {
	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		return false
	case FormatConsole:
		return true
	default:
		return cfg.Pretty || tty
	}
}

func buildConsoleWriter(output io.Writer, color bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:             output,
		TimeFormat:      "15:04:05",
		NoColor:         !color,
		FormatLevel:     func(i any) string { return formatLevel(i, color) },
		FormatMessage:   formatMessage,
		FormatFieldName: func(i any) string { return formatFieldName(i, color) },
		FormatFieldValue: func(i any) string {
			return fmt.Sprintf("%s", i)
		},
	}
}

var levelLabels = map[string][2]string{
	"debug": {"DBG", "\033[36m"},
	"info":  {"INF", "\033[32m"},
	"warn":  {"WRN", "\033[33m"},
	"error": {"ERR", "\033[31m"},
	"fatal": {"FTL", "\033[35m"},
	"panic": {"PNC", "\033[35m"},
}

func formatLevel(i any, color bool) string {
	levelStr, ok := i.(string)
	if !ok {
		return ""
	}
	label, exists := levelLabels[levelStr]
	if !exists {
		return levelStr
	}
	if !color {
		return label[0]
	}
	return label[1] + label[0] + "\033[0m"
}

func formatMessage(i any) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("-> %s", i)
}

func formatFieldName(i any, color bool) string {
	if !color {
		return fmt.Sprintf("%s=", i)
	}
	return fmt.Sprintf("\033[2m%s=\033[0m", i)
}

// AddRequestID stores requestID (a new UUID when empty) in ctx and in the
// context logger.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	logger := log.Ctx(ctx).With().Str("request_id", requestID).Logger()

	return logger.WithContext(ctx)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
