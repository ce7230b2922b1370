package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/config"
	"github.com/elee1766/chatmux/src/executor"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error
	ExitUsage       = 2 // Usage error
	ExitConfig      = 3 // Configuration error
	ExitAuth        = 4 // Authentication error
	ExitPermission  = 5 // Permission error
	ExitNetwork     = 6 // Network error
	ExitTimeout     = 7 // Timeout error
	ExitInterrupted = 8 // Interrupted by user
	ExitInternal    = 9 // Internal error
)

// errConfig marks failures to load or apply the configuration.
var errConfig = errors.New("configuration error")

// HandleError prints err and returns the exit code for it.
func HandleError(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(w, "Error: %s\n", err)
	return exitCode(err)
}

// exitCode determines the appropriate exit code for an error
func exitCode(err error) int {
	var validation config.ValidationError
	switch {
	case errors.Is(err, errConfig),
		errors.Is(err, config.ErrUnknownApp),
		errors.Is(err, aisdk.ErrUnknownVendor),
		errors.As(err, &validation):
		return ExitConfig
	case errors.Is(err, executor.ErrSessionNotFound),
		errors.Is(err, executor.ErrAppMismatch),
		errors.Is(err, executor.ErrNoStorage):
		return ExitUsage
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	}

	var apiErr *aisdk.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return ExitAuth
		case http.StatusForbidden:
			return ExitPermission
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ExitTimeout
		}
	}

	var turnErr *aisdk.Error
	if errors.As(err, &turnErr) {
		switch turnErr.Kind {
		case aisdk.KindNetwork, aisdk.KindExhausted:
			return ExitNetwork
		case aisdk.KindCancelled:
			return ExitInterrupted
		case aisdk.KindInternal:
			return ExitInternal
		}
	}
	return ExitError
}
