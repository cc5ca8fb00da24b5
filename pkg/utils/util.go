package utils

import (
	"net/http"
	"net/http/httputil"

	"github.com/rs/zerolog"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

// DebugRoundTripper dumps every request and response to the logger at debug
// level. redact is applied to each dump before it is logged; it may be nil.
func DebugRoundTripper(logger zerolog.Logger, redact func(string) string) http.RoundTripper {
	return DebugRoundTripperWithUnderlying(http.DefaultTransport, logger, redact)
}

func DebugRoundTripperWithUnderlying(u http.RoundTripper, logger zerolog.Logger, redact func(string) string) http.RoundTripper {
	if u == nil {
		u = http.DefaultTransport
	}
	if redact == nil {
		redact = func(s string) string { return s }
	}
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		d, _ := httputil.DumpRequestOut(r, true)
		logger.Debug().Msg(redact(string(d)))
		res, err := u.RoundTrip(r)
		if err == nil {
			d, _ := httputil.DumpResponse(res, true)
			logger.Debug().Msg(redact(string(d)))
		}
		return res, err
	})
}
