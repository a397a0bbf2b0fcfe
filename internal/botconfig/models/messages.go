// Package models holds the bot's operator-editable message templates.
package models

import (
	"strings"
	"time"
	"unicode/utf8"

	dErrors "escrowops/pkg/domain-errors"
)

// maxMessageRunes is the bot platform's message length limit.
const maxMessageRunes = 4096

// Messages are the templates the bot front-end renders.
type Messages struct {
	Welcome   string            `json:"welcome_message"`
	Rules     string            `json:"rules_message"`
	Errors    map[string]string `json:"error_messages"`
	UpdatedAt time.Time         `json:"updated_at,omitzero"`
	UpdatedBy string            `json:"updated_by,omitempty"`
}

// Defaults are served until an operator saves templates.
func Defaults() Messages {
	return Messages{
		Welcome: "✨ Welcome to Rahu Escrow ✨\n\n🌟 Premium Multi-Crypto Escrow Service 🌟",
		Rules:   "📋 Rahu Escrow - Premium Rules 📋\n\n💰 Fee Structure:\n• Bitcoin (BTC): $5 or 5%\n• Ethereum (ETH): $5 or 5%",
		Errors: map[string]string{
			"invalid_address":   "🛑 Invalid address, please check and retry",
			"permission_denied": "❌ Access Denied - Insufficient privileges",
			"user_banned":       "🚫 Your account has been suspended",
		},
	}
}

// Validate requires welcome and rules text within the platform limit and
// non-empty error keys and texts.
func (m Messages) Validate() error {
	if err := checkText("welcome_message", m.Welcome); err != nil {
		return err
	}
	if err := checkText("rules_message", m.Rules); err != nil {
		return err
	}
	for key, text := range m.Errors {
		if strings.TrimSpace(key) == "" {
			return dErrors.New(dErrors.CodeValidation, "error_messages keys cannot be empty")
		}
		if err := checkText("error_messages."+key, text); err != nil {
			return err
		}
	}
	return nil
}

func checkText(field, text string) error {
	if strings.TrimSpace(text) == "" {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return dErrors.New(dErrors.CodeValidation, field+" exceeds 4096 characters")
	}
	return nil
}

func (m Messages) Clone() Messages {
	cp := m
	cp.Errors = make(map[string]string, len(m.Errors))
	for k, v := range m.Errors {
		cp.Errors[k] = v
	}
	return cp
}
