// Package app wires csvmail together and manages its lifecycle: logging,
// telemetry, the artifact store, the validation queue, the WebSocket hub,
// services, handlers and the HTTP server.
//
// # Initialization Flow
//
//	1. Initialize logging and OpenTelemetry from the loaded config
//	2. Open the artifact store (file directory or Redis)
//	3. Build the domain checker, validation pipeline and job queue
//	4. Create services and mount handlers behind the middleware chain
//	5. Start the hub, the queue workers and the HTTP server
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the server stops accepting requests, running jobs are
// cancelled and drained so their final events reach subscribers, the hub
// closes its clients and telemetry is flushed.
//
// Initialization errors are returned to the caller; the package never calls
// os.Exit.
package app
