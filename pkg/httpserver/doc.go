// Package httpserver runs an http.Server bound to a context.
//
// Run listens on Config.Addr and serves until the context is cancelled, then
// shuts down gracefully within Config.ShutdownTimeout. Signal handling is
// left to the caller, typically via signal.NotifyContext.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// LivenessHandler and ReadinessHandler implement probe endpoints.
package httpserver
