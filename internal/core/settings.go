package core

const (
	English Language = "en"
	Uzbek   Language = "uz"
	Russian Language = "ru"
)

type (
	Language string

	// Settings is the singleton preferences record.
	Settings struct {
		Language      Language `json:"language"`
		Currency      string   `json:"currency"`
		Notifications bool     `json:"notifications"`
	}

	// SettingsPatch is a shallow partial update of Settings.
	SettingsPatch struct {
		Language      *Language `json:"language,omitempty"`
		Currency      *string   `json:"currency,omitempty"`
		Notifications *bool     `json:"notifications,omitempty"`
	}
)

// DefaultSettings is used when nothing usable is persisted.
func DefaultSettings() Settings {
	return Settings{
		Language:      English,
		Currency:      "UZS",
		Notifications: true,
	}
}

// IsValid reports whether l is one of the supported locales.
func (l Language) IsValid() bool {
	switch l {
	case English, Uzbek, Russian:
		return true
	default:
		return false
	}
}

// Apply merges the patch over s.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.Currency != nil {
		s.Currency = *p.Currency
	}
	if p.Notifications != nil {
		s.Notifications = *p.Notifications
	}
	return s
}
