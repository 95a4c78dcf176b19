// Package audit emits one JSON line per security-relevant state change:
// registrations, logins, token rotations, password changes and role
// grants. Entries share the obs logger so they interleave with request
// logs in order.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"shutterdesk.app/internal/auth"
	"shutterdesk.app/internal/obs"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier used to correlate audit
// entries with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// Record writes an audit entry enriched with the request id and the
// acting principal when the context carries them.
func Record(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry["actor_id"] = principal.ID
	}
	if len(fields) > 0 {
		cp := make(map[string]any, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		entry["fields"] = cp
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
