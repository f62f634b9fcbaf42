// Package logging builds the process slog.Logger.
//
// The handler chain is:
//
//	ContextHandler -> RedactingHandler (optional) -> JSON or text handler
//
// ContextHandler copies request-scoped fields from the context into every
// record logged through the *Context methods: the log id (WithLogID), the
// product (WithProduct) and the trace and span ids of the active
// OpenTelemetry span. Context attributes are added before redaction.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithLogID(ctx, "dmkit_6f1c")
//	logger.InfoContext(ctx, "Turn resolved", "domain", "billing")
//
// # Redaction
//
// With RedactPII set, e-mail addresses, mobile numbers, ID card numbers,
// IPv4 addresses, bearer tokens and password assignments are masked in
// messages and string attributes. Values of keys such as "token" or
// "authorization" are masked entirely.
package logging
