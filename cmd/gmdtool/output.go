// Output control for gmdtool: every message goes through a verbosity check.
package main

import (
	"fmt"
	"os"
)

// LogLevel represents different levels of logging output
type LogLevel int

const (
	LogQuiet   LogLevel = iota // Only errors and results
	LogNormal                  // Standard output
	LogVerbose                 // Codec diagnostics
)

var (
	IsVerboseMode = false
	IsQuietMode   = false
)

func VerbosePrintf(level LogLevel, format string, args ...any) {
	if shouldPrint(level) {
		fmt.Printf(format, args...)
	}
}

// ErrorPrintf always prints error messages to stderr regardless of verbosity
func ErrorPrintf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// InfoPrintf prints normal information (respects quiet mode)
func InfoPrintf(format string, args ...any) {
	VerbosePrintf(LogNormal, format, args...)
}

// DebugPrintf is installed as the codec's Debugf hook in verbose mode.
func DebugPrintf(format string, args ...any) {
	VerbosePrintf(LogVerbose, format, args...)
}

// ResultPrintf prints final results (always shows unless in quiet mode)
func ResultPrintf(format string, args ...any) {
	if !IsQuietMode {
		fmt.Printf(format, args...)
	}
}

func shouldPrint(level LogLevel) bool {
	if IsQuietMode {
		return level == LogQuiet
	}
	if IsVerboseMode {
		return true
	}
	return level <= LogNormal
}
