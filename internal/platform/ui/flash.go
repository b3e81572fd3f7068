// Package ui holds what the HTML pages share: the page model, one-shot
// alerts and the mapping of errors to user-facing messages.
package ui

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

// FlashCookie carries alerts across a redirect.
const FlashCookie = "clinsys_flash"

// Alert kinds, matching the stylesheet's alert classes.
const (
	Success = "success"
	Info    = "info"
	Warning = "warning"
	Danger  = "danger"
)

// Message is one alert.
type Message struct {
	Kind string `json:"k"`
	Text string `json:"t"`
}

// Flash queues an alert for the next rendered page.
func Flash(c echo.Context, kind, text string) {
	msgs := append(read(c), Message{Kind: kind, Text: text})
	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     FlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})
	// Later reads in the same request see the queued alert.
	c.Set(FlashCookie, msgs)
}

// Pop returns and clears the queued alerts.
func Pop(c echo.Context) []Message {
	msgs := read(c)
	if len(msgs) == 0 {
		return nil
	}
	c.SetCookie(&http.Cookie{
		Name:     FlashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})
	c.Set(FlashCookie, []Message{})
	return msgs
}

func read(c echo.Context) []Message {
	if msgs, ok := c.Get(FlashCookie).([]Message); ok {
		return msgs
	}
	ck, err := c.Cookie(FlashCookie)
	if err != nil || ck.Value == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(ck.Value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}
