package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func requestWith(headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.4:80"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		fallback string
		country  string
		want     string
	}{
		{name: "explicit header wins over country", headers: map[string]string{"X-Locale": "ID"}, country: "US", want: "id"},
		{name: "accept-language english", headers: map[string]string{"Accept-Language": "en-US,en;q=0.9"}, want: "en"},
		{name: "accept-language indonesian first", headers: map[string]string{"Accept-Language": "id-ID,en;q=0.8"}, want: "id"},
		{name: "indonesian country", country: "ID", want: "id"},
		{name: "other country uses english", country: "US", fallback: "id", want: "en"},
		{name: "configured fallback", fallback: "id", want: "id"},
		{name: "nothing known", want: "en"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectLocale(requestWith(tc.headers), tc.fallback, tc.country); got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		{name: "first proxy header wins", headers: map[string]string{"X-Country-Code": "us", "CF-IPCountry": "id"}, want: "US"},
		{name: "region from locale header", headers: map[string]string{"X-Locale": "en-AU"}, want: "AU"},
		{name: "region from accept-language", headers: map[string]string{"Accept-Language": "en-GB,en;q=0.9"}, want: "GB"},
		{name: "bare indonesian implies ID", headers: map[string]string{"Accept-Language": "id;q=0.8"}, want: "ID"},
		{
			name: "geoip lookup by client ip",
			lookup: func(ip string) (string, error) {
				if ip != "203.0.113.4" {
					return "", errors.New("unexpected ip " + ip)
				}
				return "my", nil
			},
			want: "MY",
		},
		{
			name:   "lookup failure is ignored",
			lookup: func(string) (string, error) { return "", errors.New("boom") },
			want:   "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveCountry(requestWith(tc.headers), tc.lookup); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := requestWith(map[string]string{"X-Forwarded-For": " 198.51.100.7 , 10.0.0.1"})
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("ClientIP() = %q", got)
	}
	if got := ClientIP(requestWith(nil)); got != "203.0.113.4" {
		t.Fatalf("ClientIP() without header = %q", got)
	}
}

func TestLocaleFromContextDefaultsToEnglish(t *testing.T) {
	if got := LocaleFromContext(context.Background()); got != "en" {
		t.Fatalf("default locale = %q", got)
	}
	ctx := context.WithValue(context.Background(), LocaleKey, "id")
	if got := LocaleFromContext(ctx); got != "id" {
		t.Fatalf("stored locale = %q", got)
	}
}

func TestNormalizeLocaleFallsBackForUnsupported(t *testing.T) {
	tests := map[string]string{
		"fr-FR":          "en",
		"id":             "id",
		"de;q=0.9,id-ID": "id",
		"not a tag!!":    "en",
	}
	for in, want := range tests {
		if got := normalizeLocale(in); got != want {
			t.Fatalf("normalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestI18NStoresLocaleAndCountry(t *testing.T) {
	var gotLocale, gotCountry string
	handler := I18N("en", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-IPCountry", "id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotLocale != "id" || gotCountry != "ID" {
		t.Fatalf("got locale %q country %q, want id ID", gotLocale, gotCountry)
	}
}
