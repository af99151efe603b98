// Package client provides the read-only inspection commands of the
// `flocheck` CLI. They talk to a running flocheck process.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads FLOCHECK_API and
// defaults to http://127.0.0.1:8080. The gRPC address is read from the
// FLOCHECK_GRPC environment variable (default 127.0.0.1:50051).
//
// Usage
//
//	flocheck status                 # run status and report
//	flocheck ledger --ids           # accepted ids
//	flocheck deadletters --limit 10 # embedded bus dead letters
//	flocheck health --service flocheck
package client
