// Package logger builds *slog.Logger values with consistent attribute names.
//
// New applies functional options over a JSON or text handler, wraps it with a
// LogHandlerDecorator that pulls request-scoped attributes from the context,
// and redacts well-known secret keys (access_token, refresh_token, code,
// code_verifier, client_secret, state) before they reach the output.
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "oauthcore"),
//		logger.WithContextExtractors(logger.CorrelationExtractor()),
//	)
//
//	ctx = logger.WithCorrelation(ctx, "c1a2b3")
//	log.InfoContext(ctx, "sign-in completed",
//		logger.Provider("github"),
//		logger.UserID(userID),
//		logger.Outcome("signed_in"),
//	)
//
// Error and Errors return an empty attribute for nil errors, so callers can
// pass them unconditionally.
package logger
