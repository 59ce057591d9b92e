// Package logging provides structured logging for forkrunner runs.
//
// Logs are JSON lines produced by log/slog. A Logger carries persistent
// attributes (run, pool) so that entries emitted from concurrently executing
// pools can be filtered after the fact:
//
//	logger, err := logging.NewLogger(dir, logging.LevelDebug, logging.DefaultRotationConfig())
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	poolLog := logger.WithRun("run-42").WithPool("phones")
//	poolLog.Info("test failed", "test", "LoginTest#testValid")
//
// When dir is empty the logger writes to stderr. NopLogger discards
// everything and is the default for components constructed with a nil logger.
//
// # Rotation
//
// File output goes through RotatingWriter, which rolls forkrunner.log over to
// forkrunner.log.1 .. forkrunner.log.N once it grows past MaxSizeMB.
package logging
