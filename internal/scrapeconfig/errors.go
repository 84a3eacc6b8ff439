package scrapeconfig

import (
	"fmt"
	"strings"
)

// FetchError reports a failed attempt to retrieve a scraper config from the
// remote config service. StatusCode is zero when the request never completed.
type FetchError struct {
	Platform   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("fetch scraper config for %s: status %d: %v", e.Platform, e.StatusCode, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("fetch scraper config for %s: unexpected status %d", e.Platform, e.StatusCode)
	default:
		return fmt.Sprintf("fetch scraper config for %s: %v", e.Platform, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// UnknownPlatformError is the structured not-found returned when the config
// service does not serve the requested platform.
type UnknownPlatformError struct {
	Platform  string
	Supported []string
}

func (e *UnknownPlatformError) Error() string {
	if len(e.Supported) == 0 {
		return fmt.Sprintf("platform %q is not served by the config service", e.Platform)
	}
	return fmt.Sprintf("platform %q is not served by the config service (supported: %s)",
		e.Platform, strings.Join(e.Supported, ", "))
}
