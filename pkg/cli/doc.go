// Package cli implements the interceptd command tree.
//
// Commands register themselves on rootCmd from their init functions;
// Execute runs the tree. --json switches every command that prints a
// result to indented JSON on stdout.
package cli
