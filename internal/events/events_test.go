package events

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestFromRequestNormalizesPlatform(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "unknown"},
		{"iOS", "ios"},
		{"ANDROID", "android"},
		{"web", "web"},
		{"toaster", "unknown"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("POST", "/events", nil)
		if tt.header != "" {
			r.Header.Set("X-Platform", tt.header)
		}
		env := FromRequest(r)
		if env.Platform != tt.want {
			t.Errorf("platform %q = %q, want %q", tt.header, env.Platform, tt.want)
		}
	}
}

func TestFromRequestLocaleFallback(t *testing.T) {
	r := httptest.NewRequest("POST", "/events", nil)
	r.Header.Set("X-Device-Locale", "de-DE")

	env := FromRequest(r)
	if env.DeviceLocale != "de-DE" {
		t.Errorf("locale = %q, want de-DE", env.DeviceLocale)
	}

	r.Header.Set("Accept-Language", "fr-FR")
	env = FromRequest(r)
	if env.DeviceLocale != "fr-FR" {
		t.Errorf("locale = %q, want Accept-Language to win", env.DeviceLocale)
	}
}

func TestSourceEventKeyPrefersIdempotencyHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/events", nil)
	r.Header.Set("X-Source-Event-Key", "fallback")

	if got := SourceEventKeyFromRequest(r); got != "fallback" {
		t.Errorf("key = %q, want fallback", got)
	}

	r.Header.Set("Idempotency-Key", "primary")
	if got := SourceEventKeyFromRequest(r); got != "primary" {
		t.Errorf("key = %q, want primary", got)
	}
}

func TestUserIDContextRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)

	uid, ok := UserIDFromContext(ctx)
	if !ok || uid != 42 {
		t.Errorf("uid = %d, ok = %v, want 42, true", uid, ok)
	}

	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("empty context should have no user id")
	}
}

func TestLogSkipsWithoutUser(t *testing.T) {
	// nil DB: must return before any query when there is no user
	if err := Log(context.Background(), nil, Envelope{}, "task_status_changed", nil, ""); err != nil {
		t.Errorf("Log = %v, want nil", err)
	}
	if err := Log(context.Background(), nil, Envelope{UserID: 1}, "", nil, ""); err != nil {
		t.Errorf("Log with empty name = %v, want nil", err)
	}
}
