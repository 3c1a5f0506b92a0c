// Package logger wraps zap with a process singleton, context propagation
// and standard field constructors.
//
// Usage:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "weddary"})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("oauth.flow"))
//	log.Info("token refreshed", logger.EventID(7), logger.Provider("gmail"))
package logger
