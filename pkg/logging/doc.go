// Package logging provides structured logging configuration for interceptd.
//
// This package wraps log/slog to provide consistent logging across all
// components. It supports configurable log levels, output formats and an
// optional size-rotated log file.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	    File:   "logs/interceptd.log",
//	})
//
//	logger.Info("proxy listening", "port", 8079)
//
// # Integration
//
// Components accept a *slog.Logger in their options. If no logger is
// provided, they fall back to logging.Nop().
package logging
