// Package watcher follows the update stream of a running alarm server.
//
// It keeps a Watch stream open, prints every update and reconnects after the
// stream breaks until the context is canceled.
package watcher
