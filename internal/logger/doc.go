// Package logger wraps zap to give every component of the alarm service:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level switching,
//   - leveled helpers (Infof, WarnKV, ErrorKV, ...).
//
// Components accept a context and log through the logger stored in it, so a
// transport can scope fields such as a subscriber id to one connection.
package logger
