// Package sandbox brokers per-user sandboxes on the E2B hosting service.
//
// A sandbox is identified by its metadata: the broker lists the sandboxes
// visible to the API key and picks the first one tagged with the caller's
// user ID and template. When there is none it creates one with those tags.
// Either way the sandbox's idle timeout is set to IdleTimeout, so a sandbox
// stays alive while its user keeps working and is reclaimed by the service
// after ten idle minutes.
//
// Code interpreter sandboxes run Python cells and are closed after each call.
// App sandboxes receive a source file and keep serving it; the broker returns
// the public preview URL of the dev server port.
//
// Remote failures are logged and returned unchanged. Nothing is retried.
//
// Usage:
//
//	client := sandbox.NewE2BClient(logger, cfg)
//	broker := sandbox.NewService(logger, cfg, client, sandbox.NewMetrics(registry))
//	preview, err := broker.WriteToApp(ctx, "user-1", code, sandbox.TemplateStreamlit, "")
package sandbox
