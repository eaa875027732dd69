// Package flow provides types, interfaces, and helpers for working with
// gateway-fronted flow services.
//
// # Overview
//
// The flow package defines the domain types (e.g., Entity, Connection,
// Group, Revision) and the interfaces for resource-oriented clients
// (e.g., EntitiesClient, ConnectionsClient, GroupsClient). A concrete
// implementation of these clients is provided by the flowclient package,
// which wires configuration, transport, credential resolution, token
// exchange, and capability probing. Most consumers should import
// flowclient to construct a client and then interact with the resource
// client interfaces exposed here.
//
// Getting a client
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
//	  cli, err := flowclient.New(ctx, &flow.Config{
//	    GatewayURL: "https://gateway.example.com",
//	    Passcode:   "s3cret-passcode",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // List the entities of a process group
//	  entities, err := cli.Groups().ListEntities(ctx, "root")
//	  if err != nil { log.Fatal(err) }
//	  _ = entities
//	}
//
// # Revisions and conflicts
//
// Every mutation is fetch-then-mutate: the client reads the entity,
// takes the revision the service reported, and submits the change under
// that revision. Revisions are never synthesized or incremented locally.
// When the service rejects a stale revision, the returned error is a
// ConflictError carrying the freshest snapshot the client could obtain;
// use ConflictSnapshot to recover it and decide whether to reapply.
//
// # Errors
//
// Service errors are represented by APIError, classified into stable
// kinds. Helpers such as IsNotFound, IsConflict, and IsTransient make it
// easy to branch on common cases without matching on status codes.
//
// # Interceptors and caching
//
// The package includes generic building blocks such as request/response
// interceptors (for logging, auth headers, rate limiting) and a
// pluggable Cache abstraction with in-memory and NATS KV backends. The
// flowclient package composes these pieces for a sensible default
// client; applications with advanced needs can also use these
// primitives directly.
package flow
