// Package app wires the service together: configuration loading,
// logging, the rate-limit store, the payments client, the bookshelf
// store, and the HTTP router, plus server lifecycle with graceful
// shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and optional YAML file
//	2. Initialize the structured logger
//	3. Connect the bookshelf store and the rate-limit backend
//	4. Construct the security components and the provider client
//	5. Assemble handlers and middleware into the router
//	6. Start the HTTP server and wait for shutdown signals
//
// # Usage
//
//	application, err := app.NewApplication(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package app
