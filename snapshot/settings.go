package snapshot

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"waiterboard/domain/waiter"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.Wrapf(waiter.ErrInvalid, "unknown settings format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

func EncodeSettings(w io.Writer, s waiter.Settings, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
}

// DecodeSettings reads a settings document as a loose key/value update so
// it can go through the same Merge path as an API update. Partial documents
// are fine.
func DecodeSettings(r io.Reader, f Format) (map[string]any, error) {
	out := map[string]any{}
	var err error
	switch f {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&out)
	default:
		err = json.NewDecoder(r).Decode(&out)
	}
	if errors.Is(err, io.EOF) {
		return out, nil
	}
	if err != nil {
		return nil, errors.Wrapf(waiter.ErrInvalid, "decode settings: %v", err)
	}
	return out, nil
}
