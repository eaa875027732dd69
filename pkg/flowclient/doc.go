// Package flowclient provides the primary entry point for constructing a
// client for a flow service reached through an API gateway, implementing
// the flow.Client interface.
//
// It layers configuration, HTTP transport, authentication, and capability
// probing on top of the resource interfaces and types defined in the flow
// package. Most applications should import flowclient to build a client,
// then use the returned flow.Client to access resource-specific clients,
// for example Entities(), Groups(), Connections().
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/thammuio/flowgate/pkg/flow"
//	  "github.com/thammuio/flowgate/pkg/flowclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  // With an access token you already have:
//	  cli, err := flowclient.NewWithToken(ctx, "https://gateway.example.com", "eyJhbGciOi...")
//	  if err != nil { log.Fatal(err) }
//
//	  // Or with a full config. When a passcode or username/password is
//	  // provided together with TokenEndpoint, the credential is exchanged
//	  // for a gateway token and kept fresh automatically.
//	  cli, err = flowclient.New(ctx, &flow.Config{
//	    GatewayURL:    "https://gateway.example.com",
//	    Passcode:      "123456",
//	    TokenEndpoint: "https://gateway.example.com/flow-api/token",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // Use resource clients via the flow.Client interface.
//	  entities, err := cli.Entities().List(ctx, flow.NewQueryParams().WithPerPage(10))
//	  if err != nil { log.Fatal(err) }
//	  _ = entities
//	}
//
// # Write safety
//
// Clients are read-only until Config.AllowWrites is set; every mutating
// operation fails fast with flow.ErrReadOnlyMode before any request is
// sent. Config.AllowedVerbs optionally restricts which run-state verbs
// (start, stop, enable, disable) a writable client may issue.
//
// # TLS and development mode
//
// For local development, you can set Config.SkipTLSVerify=true. This is
// gated by the environment variable FLOWGATE_DEV_MODE to avoid accidental
// insecure usage in production environments. Private gateway CAs are
// supported through Config.CABundle.
//
// # Helpers
//
// The package also provides convenience constructors NewWithToken,
// NewWithPasscode, and NewWithBasicAuth that wrap New with the appropriate
// configuration.
package flowclient
