package studiotest

import (
	"net/http/httptest"
	"testing"
)

// TestServer runs a fake Studio behind an httptest server.
type TestServer struct {
	*Studio
	Server *httptest.Server
}

// New starts a fake studio that is closed when the test ends.
func New(t *testing.T) *TestServer {
	t.Helper()

	studio := NewStudio("https://assets.example.test")
	server := httptest.NewServer(studio)
	t.Cleanup(server.Close)

	return &TestServer{Studio: studio, Server: server}
}

// URL is the base URL to configure a studio client with.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}
