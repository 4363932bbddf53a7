package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
	// FieldService is one of classification, extraction or attachment.
	FieldService = "ai_service"
	// FieldRole tells whether the primary or the fallback provider served a call.
	FieldRole = "ai_role"

	FieldMessageID = "message_id"
	FieldSubject   = "subject"
)

const subjectLimit = 80

// nonEmpty turns key/value pairs into string fields, skipping pairs whose
// value is blank so entries stay compact.
func nonEmpty(pairs ...string) []zap.Field {
	fields := make([]zap.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		value := strings.TrimSpace(pairs[i+1])
		if value == "" {
			continue
		}
		fields = append(fields, zap.String(pairs[i], value))
	}
	return fields
}

// WithFields attaches fields to the logger. A nil logger becomes a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CommonFields describes the provider and model behind a client.
func CommonFields(provider, model string) []zap.Field {
	return nonEmpty(FieldProvider, provider, FieldModel, model)
}

// CallFields describes one AI call.
func CallFields(service, role, provider, model string) []zap.Field {
	return nonEmpty(FieldService, service, FieldRole, role, FieldProvider, provider, FieldModel, model)
}

// MessageFields identifies the message an entry belongs to. Long subjects are cut.
func MessageFields(messageID, subject string) []zap.Field {
	subject = strings.TrimSpace(subject)
	if runes := []rune(subject); len(runes) > subjectLimit {
		subject = string(runes[:subjectLimit]) + "..."
	}
	return nonEmpty(FieldMessageID, messageID, FieldSubject, subject)
}
