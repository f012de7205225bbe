// Package integration holds end-to-end tests that run the real server.
package integration
