package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// BaseLang backs every other locale: keys it defines are used when the
// requested locale omits them.
const BaseLang = "en"

// Translator renders user-facing copy (email subjects and bodies). Locale
// files are nested YAML maps addressed by dotted keys, e.g. "email.refund.subject".
type Translator struct {
	lang     string
	messages map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys on top of the base locale.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	messages, err := loadLocale(fsys, lang)
	if err != nil {
		return nil, err
	}
	if lang != BaseLang {
		base, err := loadLocale(fsys, BaseLang)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		for k, v := range base {
			if _, ok := messages[k]; !ok {
				messages[k] = v
			}
		}
	}
	return &Translator{lang: lang, messages: messages}, nil
}

func loadLocale(fsys fs.FS, lang string) (map[string]string, error) {
	file := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("read locale %s: %w", file, err)
	}
	out, err := parseMessages(data)
	if err != nil {
		return nil, fmt.Errorf("locale %s: %w", file, err)
	}
	return out, nil
}

func parseMessages(data []byte) (map[string]string, error) {
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	out := make(map[string]string)
	if err := flatten("", tree, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]interface{}:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %q: expected string or map, got %T", key, v)
		}
	}
	return nil
}

// T formats the message for key; an unknown key is returned as is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

func (t *Translator) Lang() string { return t.lang }
