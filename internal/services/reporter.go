package services

import "github.com/getsentry/sentry-go"

// ErrorReporter forwards errors that need a human to an error tracker.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

type SentryReporter struct{}

func (SentryReporter) CaptureError(err error, tags map[string]string) {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
	})
	hub.CaptureException(err)
}
