package templates

import (
	"context"
	"errors"

	rerrors "github.com/conneroisu/storefront/internal/errors"
)

// SettingsDataPath holds the theme's configured setting values.
const SettingsDataPath = "config/settings_data.json"

// ThemeSettings returns the "current" settings of config/settings_data.json.
// A theme without the file has empty settings. When "current" names a
// preset, the preset's values are returned.
func (l *Loader) ThemeSettings(ctx context.Context, storeID string) (map[string]any, error) {
	raw, err := l.fetch(ctx, storeID, SettingsDataPath)
	if errors.Is(err, rerrors.ErrTemplateNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	var data struct {
		Current any                       `json:"current"`
		Presets map[string]map[string]any `json:"presets"`
	}
	if err := UnmarshalTolerant(raw, &data); err != nil {
		return nil, rerrors.NewTemplateParseError(SettingsDataPath, err)
	}

	switch cur := data.Current.(type) {
	case map[string]any:
		return cur, nil
	case string:
		if preset, ok := data.Presets[cur]; ok {
			return preset, nil
		}
	}
	return map[string]any{}, nil
}
