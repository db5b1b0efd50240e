package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// deviceCookieName identifies the anonymous device owning credits and
// exports. No accounts, no passwords: the cookie is the identity.
const deviceCookieName = "soundscape_device_id"

type contextKey string

const deviceIDKey contextKey = "device_id"

// DeviceMiddleware assigns every visitor a stable device id cookie and puts
// it on the request context.
func DeviceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var deviceID string
		if c, err := r.Cookie(deviceCookieName); err == nil && c.Value != "" {
			deviceID = c.Value
		} else {
			deviceID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     deviceCookieName,
				Value:    deviceID,
				Path:     "/",
				Expires:  time.Now().Add(365 * 24 * time.Hour),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceID returns the device id set by DeviceMiddleware.
func deviceID(r *http.Request) string {
	if v, ok := r.Context().Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}
