package notification

import (
	"encoding/json"
	"strings"

	"github.com/betfoundry/playerlink/internal/models"
)

// Normalize converts a raw notification from REST or push into the local
// representation. Unrecognized types fold into system; the icon falls back
// from explicit metadata to a type default to the generic info icon.
func Normalize(wire models.NotificationWire) models.Notification {
	notificationType := typeFromRaw(wire.Type)
	title, message := splitSubject(wire.Title, wire.Message)

	return models.Notification{
		ID:        wire.ID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Timestamp: wire.CreatedAt,
		Read:      wire.ReadAt != nil,
		ReadAt:    wire.ReadAt,
		Link:      wire.Link,
		Icon:      iconFor(notificationType, wire.Metadata),
		Metadata:  wire.Metadata,
	}
}

func typeFromRaw(raw string) models.NotificationType {
	switch models.NotificationType(strings.ToLower(raw)) {
	case models.NotificationBonus,
		models.NotificationWin,
		models.NotificationSystem,
		models.NotificationPromotion,
		models.NotificationAchievement,
		models.NotificationFinancial,
		models.NotificationAccount,
		models.NotificationInfo,
		models.NotificationSuccess,
		models.NotificationWarning,
		models.NotificationError:
		return models.NotificationType(strings.ToLower(raw))
	default:
		return models.NotificationSystem
	}
}

var typeIcons = map[models.NotificationType]string{
	models.NotificationBonus:       "gift",
	models.NotificationWin:         "trophy",
	models.NotificationSystem:      "info",
	models.NotificationPromotion:   "megaphone",
	models.NotificationAchievement: "medal",
	models.NotificationFinancial:   "bank",
	models.NotificationAccount:     "user",
	models.NotificationInfo:        "info",
	models.NotificationSuccess:     "check-circle",
	models.NotificationWarning:     "alert-triangle",
	models.NotificationError:       "alert-circle",
}

func iconFor(notificationType models.NotificationType, metadata json.RawMessage) string {
	if len(metadata) > 0 {
		var meta struct {
			Icon string `json:"icon"`
		}
		if err := json.Unmarshal(metadata, &meta); err == nil && meta.Icon != "" {
			return meta.Icon
		}
	}

	if icon, ok := typeIcons[notificationType]; ok {
		return icon
	}
	return "info"
}

// splitSubject derives title and message from a combined subject+text field,
// but only when a separate subject is absent
func splitSubject(title, message string) (string, string) {
	if title != "" {
		return title, message
	}

	if subject, rest, found := strings.Cut(message, "\n"); found {
		return strings.TrimSpace(subject), strings.TrimSpace(rest)
	}
	return "", message
}
