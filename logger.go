package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// Logger constants
const (
	// Environment variable name to enable/disable detailed logging
	LogDetailEnvVar = "LOG_DETAIL"
	// Environment variable to enable/disable colored output
	LogColorEnvVar = "LOG_COLOR"
	// Environment variable for log directory
	LogDirEnvVar = "LOG_DIR"
	// Default log directory
	DefaultLogDir = "logs"
)

var (
	// Whether detailed logging is enabled
	detailedLoggingEnabled bool
	// Whether colored logging is enabled
	coloredLoggingEnabled bool
	// Log file
	logFile *os.File
	// Logger instance
	logger *log.Logger
)

// InitLogger initializes the logger with the specified configuration
func InitLogger() {
	detailedLoggingEnabled = strings.ToLower(os.Getenv(LogDetailEnvVar)) == "true"

	// Colored output defaults to on, console only
	coloredLoggingEnabled = os.Getenv(LogColorEnvVar) != "false"

	logDir := os.Getenv(LogDirEnvVar)
	if logDir == "" {
		logDir = DefaultLogDir
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Failed to create log directory: %v", err)
	}

	// One log file per day
	currentTime := time.Now().Format("2006-01-02")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("farm-service-%s.log", currentTime))

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Failed to open log file: %v", err)
	} else {
		// Write to both console and file
		multiWriter := io.MultiWriter(os.Stdout, logFile)
		logger = log.New(multiWriter, "", log.LstdFlags)

		log.SetOutput(multiWriter)
		log.SetFlags(log.LstdFlags)
	}

	LogInfo("Logging initialized. Logs will be saved to: %s", logFilePath)

	if detailedLoggingEnabled {
		LogInfo("Detailed logging enabled - logs will include file and function information")
	}
}

// CloseLogger closes the log file
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
	}
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	logWithLevel("DEBUG", ColorCyan, format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logWithLevel("INFO", ColorGreen, format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	logWithLevel("WARNING", ColorYellow, format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logWithLevel("ERROR", ColorRed, format, args...)
}

// logWithLevel logs a message with the specified level and, if detailed
// logging is enabled, the caller's file and function information
func logWithLevel(level string, color string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	levelStr := level
	coloredLevelStr := level
	if coloredLoggingEnabled {
		coloredLevelStr = color + level + ColorReset
	}

	if detailedLoggingEnabled {
		pc, file, line, ok := runtime.Caller(2)
		if !ok {
			file = "unknown"
			line = 0
		}

		filename := filepath.Base(file)

		funcName := runtime.FuncForPC(pc).Name()
		if lastDot := strings.LastIndex(funcName, "."); lastDot >= 0 {
			funcName = funcName[lastDot+1:]
		}

		fileInfo := fmt.Sprintf("%s:%s:%d", filename, funcName, line)

		if logger != nil {
			logger.Printf("[%s] %s - %s", levelStr, fileInfo, message)
		} else {
			log.Printf("[%s] %s - %s", coloredLevelStr, fileInfo, message)
		}
	} else {
		if logger != nil {
			logger.Printf("[%s] %s", levelStr, message)
		} else {
			log.Printf("[%s] %s", coloredLevelStr, message)
		}
	}
}
