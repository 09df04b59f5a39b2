// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package zoom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoinURL(t *testing.T) {
	cases := []struct {
		url, number, password string
	}{
		{"https://us02web.zoom.us/j/84315220467?pwd=9jyI4ZIv3M1", "84315220467", "9jyI4ZIv3M1"},
		{"https://zoom.us/wc/join/123456789", "123456789", ""},
		{" https://zoom.us/s/987654321?pwd=x ", "987654321", "x"},
	}
	for _, tc := range cases {
		n, p, err := ParseJoinURL(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.number, n)
		assert.Equal(t, tc.password, p)
	}

	_, _, err := ParseJoinURL("https://zoom.us/meeting/schedule")
	assert.ErrorIs(t, err, ErrNotJoinURL)
}

func decodeToken(t *testing.T, token, secret string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), parts[2], "signature")

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(raw, &claims))
	return claims
}

func TestMeetingSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := MeetingSignature("123", "key", "secret", now)
	require.NoError(t, err)

	claims := decodeToken(t, token, "secret")
	assert.Equal(t, "123", claims["mn"])
	assert.Equal(t, "key", claims["sdkKey"])
	assert.EqualValues(t, 0, claims["role"])
	assert.EqualValues(t, 1_700_000_000, claims["iat"])
	assert.EqualValues(t, 1_700_007_200, claims["exp"])

	_, err = MeetingSignature("123", "", "secret", now)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAppToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := AppToken("key", "secret", now)
	require.NoError(t, err)

	claims := decodeToken(t, token, "secret")
	assert.Equal(t, "key", claims["appKey"])
	assert.EqualValues(t, 1_700_086_400, claims["tokenExp"])
	assert.NotContains(t, claims, "mn")

	_, err = AppToken("key", "", now)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
