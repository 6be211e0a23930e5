// Package logger provides standardized logging utilities for the rvm
// toolchain, built on logrus.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
)

// Global logger instance
var defaultLogger *logrus.Logger

// LogLevel represents the logging level
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	l := logrus.New()

	output := cfg.Output
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = file
	}
	l.SetOutput(output)
	l.SetLevel(toLogrusLevel(cfg.Level))

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetReportCaller(cfg.AddSource)

	defaultLogger = l
	logrus.SetOutput(output)
	logrus.SetFormatter(l.Formatter)
	logrus.SetLevel(l.Level)

	return nil
}

// InitDev initializes logging for development (debug level, text format)
func InitDev() {
	_ = Init(Config{
		Level:     LevelDebug,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: true,
	})
}

// InitProd initializes logging for production (info level, json format)
func InitProd(logDir string) error {
	logPath := filepath.Join(logDir, "rvm-toolchain.log")
	return Init(Config{
		Level:   LevelInfo,
		Format:  "json",
		LogFile: logPath,
	})
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LevelTrace:
		return logrus.TraceLevel
	case LevelDebug:
		return logrus.DebugLevel
	case LevelInfo:
		return logrus.InfoLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// TraceValue dumps v with kr/pretty's "%# v" verb at trace level, for
// inspecting an IR value or instruction during lowering.
func TraceValue(label string, v any) {
	l := current()
	if l.Level < logrus.TraceLevel {
		return
	}
	l.WithField("value", pretty.Sprint(v)).Trace(label)
}

func current() *logrus.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return logrus.StandardLogger()
}

// Debug logs a debug message
func Debug(msg string, fields logrus.Fields) {
	current().WithFields(fields).Debug(msg)
}

// Info logs an info message
func Info(msg string, fields logrus.Fields) {
	current().WithFields(fields).Info(msg)
}

// Warn logs a warning message
func Warn(msg string, fields logrus.Fields) {
	current().WithFields(fields).Warn(msg)
}

// Error logs an error message
func Error(msg string, fields logrus.Fields) {
	current().WithFields(fields).Error(msg)
}

// With returns a new entry with the given fields.
func With(fields logrus.Fields) *logrus.Entry {
	return current().WithFields(fields)
}

// Compiler-specific logging helpers

// LogPhase logs the start of a compilation phase
func LogPhase(phase string) {
	Info("starting compilation phase", logrus.Fields{"phase": phase})
}

// LogPhaseComplete logs the completion of a compilation phase
func LogPhaseComplete(phase string) {
	Info("completed compilation phase", logrus.Fields{"phase": phase})
}

// LogParsing logs parsing activity.
func LogParsing(file string, nodeCount int) {
	Debug("parsing complete", logrus.Fields{"file": file, "nodes": nodeCount})
}

// LogIRBuild logs IR construction for one function.
func LogIRBuild(funcName string, blockCount int) {
	Debug("ir build complete", logrus.Fields{"function": funcName, "blocks": blockCount})
}

// LogLowering logs per-function lowering completion.
func LogLowering(funcName string, instructionCount, spillCount int) {
	Debug("lowering complete", logrus.Fields{
		"function":     funcName,
		"instructions": instructionCount,
		"spills":       spillCount,
	})
}

// LogError logs a compilation error
func LogError(phase string, file string, line int, msg string) {
	Error("compilation error", logrus.Fields{
		"phase":   phase,
		"file":    file,
		"line":    line,
		"message": msg,
	})
}

// LogWarning logs a compilation warning
func LogWarning(phase string, file string, line int, msg string) {
	Warn("compilation warning", logrus.Fields{
		"phase":   phase,
		"file":    file,
		"line":    line,
		"message": msg,
	})
}

// LogCompilerStart logs compiler startup
func LogCompilerStart(args []string) {
	Info("rvc starting", logrus.Fields{"args": args})
}

// LogCompilerComplete logs compiler completion
func LogCompilerComplete(success bool, duration string) {
	if success {
		Info("compilation successful", logrus.Fields{"duration": duration})
	} else {
		Error("compilation failed", logrus.Fields{"duration": duration})
	}
}

// LogFileProcessing logs file processing start
func LogFileProcessing(file string) {
	Info("processing file", logrus.Fields{"file": file})
}

// LogLinkingStart logs linker start
func LogLinkingStart(functionCount int) {
	Info("starting linking", logrus.Fields{"functions": functionCount})
}

// LogLinkingComplete logs linker completion
func LogLinkingComplete(outputFile string) {
	Info("linking complete", logrus.Fields{"output": outputFile})
}

// LogVMStart logs VM startup.
func LogVMStart(binaryPath string, debug bool) {
	Info("rvm starting", logrus.Fields{"binary": binaryPath, "debug": debug})
}

// LogVMHalt logs a normal VM halt.
func LogVMHalt(steps int) {
	Info("vm halted", logrus.Fields{"steps": steps})
}

// LogVMFault logs a runtime fault.
func LogVMFault(pc, bank uint16, condition string) {
	Error("vm runtime fault", logrus.Fields{"pc": pc, "bank": bank, "condition": condition})
}
