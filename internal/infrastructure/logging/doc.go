// Package logging builds the slog logger shared by every FOTA Core component.
//
// Entries carry service and version attributes; Component adds a
// "component" attribute so registry, telemetry, command and api output
// can be filtered apart:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("command").Info("command sent", "device_id", id)
//
// Level (debug|info|warn|error), format (json|text) and output
// (stdout|stderr) come from the logging section of the config.
// Secrets are never logged.
package logging
