// Package util holds small helpers shared by the relay, the plugins and the
// stores: confining recording and rule paths to their root directory, and
// capping bodies before they reach a log line.
package util
