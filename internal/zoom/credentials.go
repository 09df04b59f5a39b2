// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package zoom holds the Zoom credential handling shared by the native and
// web SDK adapters.
package zoom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Credentials are the SDK app credentials and per-meeting tokens.
type Credentials struct {
	SDKKey            string
	SDKSecret         string
	ZAKToken          string
	JoinToken         string
	AppPrivilegeToken string
	OnBehalfToken     string
}

// Token lifetimes.
const (
	MeetingSignatureLifetime = 2 * time.Hour
	AppTokenLifetime         = 24 * time.Hour
)

var (
	ErrMissingCredentials = errors.New("zoom: sdk key or secret missing")
	ErrNotJoinURL         = errors.New("zoom: no meeting number in url")
)

// MeetingSignature returns the HS256 token the web meeting SDK requires to
// join meetingNumber as an attendee.
func MeetingSignature(meetingNumber, key, secret string, now time.Time) (string, error) {
	exp := now.Add(MeetingSignatureLifetime).Unix()
	return sign(key, secret, map[string]any{
		"appKey":   key,
		"sdkKey":   key,
		"mn":       meetingNumber,
		"role":     0,
		"iat":      now.Unix(),
		"exp":      exp,
		"tokenExp": exp,
	})
}

// AppToken returns the token the native SDK authenticates with.
func AppToken(key, secret string, now time.Time) (string, error) {
	exp := now.Add(AppTokenLifetime).Unix()
	return sign(key, secret, map[string]any{
		"appKey":   key,
		"iat":      now.Unix(),
		"exp":      exp,
		"tokenExp": exp,
	})
}

func sign(key, secret string, claims map[string]any) (string, error) {
	if key == "" || secret == "" {
		return "", ErrMissingCredentials
	}
	enc := base64.RawURLEncoding
	h, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signing := enc.EncodeToString(h) + "." + enc.EncodeToString(c)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signing))
	return signing + "." + enc.EncodeToString(mac.Sum(nil)), nil
}

// ParseJoinURL extracts the meeting number and password from join links
// such as https://us02web.zoom.us/j/123456789?pwd=abc.
func ParseJoinURL(raw string) (number, password string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("zoom: parse url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p != "j" && p != "wc" && p != "s" {
			continue
		}
		for _, seg := range parts[i+1:] {
			if isDigits(seg) {
				return seg, u.Query().Get("pwd"), nil
			}
		}
	}
	return "", "", ErrNotJoinURL
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
