// Package testutil provides test infrastructure shared across
// packages, most notably an embedded NATS server so transport tests
// run without external dependencies.
package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// StartEmbeddedNATS starts an in-process NATS server on a random port
// and returns a connected client. Server and connection are cleaned up
// via t.Cleanup.
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := &server.Options{
		Host:  "127.0.0.1",
		Port:  -1, // random available port
		NoLog: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready within timeout")
	}

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("failed to connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// Conn dials the given NATS URL for multi-client tests against the
// same embedded server.
func Conn(t *testing.T, url string) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(url, nats.Timeout(2*time.Second))
	if err != nil {
		t.Fatalf("failed to connect to NATS at %s: %v", url, err)
	}
	t.Cleanup(nc.Close)

	return nc
}
