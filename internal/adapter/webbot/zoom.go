// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"encoding/json"

	"github.com/ManuGH/meetbot/internal/zoom"
)

func zoomInitialData(cfg *Config) (string, error) {
	number, password, err := zoom.ParseJoinURL(cfg.MeetingURL)
	if err != nil {
		return "", err
	}
	sig, err := zoom.MeetingSignature(number, cfg.Zoom.SDKKey, cfg.Zoom.SDKSecret, cfg.Now())
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(map[string]string{
		"signature":         sig,
		"sdkKey":            cfg.Zoom.SDKKey,
		"meetingNumber":     number,
		"meetingPassword":   password,
		"zakToken":          cfg.Zoom.ZAKToken,
		"joinToken":         cfg.Zoom.JoinToken,
		"appPrivilegeToken": cfg.Zoom.AppPrivilegeToken,
		"onBehalfToken":     cfg.Zoom.OnBehalfToken,
	})
	if err != nil {
		return "", err
	}
	return "window.zoomInitialData = " + string(data) + ";", nil
}
