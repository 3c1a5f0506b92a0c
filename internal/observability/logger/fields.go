package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard field constructors so field names stay consistent across the app.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

func DurationMs(v int64) zap.Field          { return zap.Int64("duration_ms", v) }
func Duration(v time.Duration) zap.Field    { return zap.Duration("duration", v) }

// Business fields.

func EventID(v int64) zap.Field    { return zap.Int64("event_id", v) }
func Provider(v string) zap.Field  { return zap.String("provider", v) }
func Account(v string) zap.Field   { return zap.String("account", v) }

// System fields.

func Component(v string) zap.Field { return zap.String("component", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Any(k string, v any) zap.Field { return zap.Any(k, v) }
