// Package logging wraps logrus with the field conventions used throughout
// this service: request_id, user_id and booking_id are attached once and
// carried through context rather than repeated at every call site.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// New builds the base logger. JSON output in prod, text in dev, mirroring
// the APP_ENV switch the rest of the config package already reads.
func New(env string) *logrus.Logger {
	l := logrus.New()
	if env == "prod" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// WithContext returns a logger entry carrying any fields previously stashed
// on ctx via IntoContext, falling back to a bare entry otherwise.
func WithContext(ctx context.Context, base *logrus.Logger) *logrus.Entry {
	if v := ctx.Value(ctxKey{}); v != nil {
		if e, ok := v.(*logrus.Entry); ok {
			return e
		}
	}
	return base.WithFields(logrus.Fields{})
}

// IntoContext attaches fields (request_id, user_id, ...) to ctx so every
// downstream WithContext call inherits them without re-threading.
func IntoContext(ctx context.Context, base *logrus.Logger, fields logrus.Fields) context.Context {
	entry := base.WithFields(fields)
	return context.WithValue(ctx, ctxKey{}, entry)
}
