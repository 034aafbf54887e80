package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/storage"
)

// outputJSON writes v as pretty-printed JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// outputJSONError writes an error as JSON to stderr and exits with code 1:
//
//	{"error": "error message", "code": "error_code"}
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj)
	os.Exit(1)
}

// errorCode classifies err for machine-readable output.
func errorCode(err error) string {
	var upstreamErr *reposync.UpstreamError
	var consistencyErr *reposync.ConsistencyError
	switch {
	case errors.Is(err, reposync.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, reposync.ErrUnknownProvider):
		return "unknown_provider"
	case errors.As(err, &upstreamErr):
		return "upstream"
	case errors.As(err, &consistencyErr):
		return "consistency"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	}
	return ""
}

// warnf writes a warning to stderr unless --quiet or --json.
func warnf(format string, args ...interface{}) {
	if quiet || jsonOutput {
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
