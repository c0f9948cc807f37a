// Package qr renders the WiFi join code for the hotspot so field crews can
// connect a phone by pointing the camera at a laptop screen or a printed
// label instead of typing the password.
package qr

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// JoinPayload builds the WIFI: URI phones understand. Backslash, semicolon,
// comma, colon and double quote carry meaning in the format and are escaped.
func JoinPayload(ssid, password string) (string, error) {
	if ssid == "" {
		return "", fmt.Errorf("qr payload: ssid is empty")
	}
	if password == "" {
		return fmt.Sprintf("WIFI:T:nopass;S:%s;;", escape(ssid)), nil
	}
	return fmt.Sprintf("WIFI:T:WPA;S:%s;P:%s;;", escape(ssid), escape(password)), nil
}

// PNG renders the join code as a PNG image. size is the width and height in
// pixels; anything non-positive falls back to 256.
func PNG(ssid, password string, size int) ([]byte, error) {
	payload, err := JoinPayload(ssid, password)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}

// Terminal renders the join code with half-height block characters for
// direct printing to a terminal.
func Terminal(ssid, password string) (string, error) {
	payload, err := JoinPayload(ssid, password)
	if err != nil {
		return "", err
	}
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return code.ToSmallString(false), nil
}

var payloadEscaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	`:`, `\:`,
	`"`, `\"`,
)

func escape(s string) string {
	return payloadEscaper.Replace(s)
}
