package cardsource

import (
	"fmt"
	"strings"
	"time"
)

// SourceSpec specifies how to create a card source.
type SourceSpec struct {
	Type   SourceType
	Config map[string]string
}

// ParseSourceSpec parses a source specification string.
// Format: "type:param1=value1,param2=value2"
// Examples:
//   - "trello:"
//   - "trello:key=abc,token=def"
//   - "jsonfile:path=cards.json"
func ParseSourceSpec(spec string) (SourceSpec, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return SourceSpec{}, fmt.Errorf("invalid source spec format: %s", spec)
	}

	config := make(map[string]string)
	if parts[1] != "" {
		for _, param := range strings.Split(parts[1], ",") {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) != 2 {
				return SourceSpec{}, fmt.Errorf("invalid parameter format: %s", param)
			}
			config[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	return SourceSpec{
		Type:   SourceType(strings.TrimSpace(parts[0])),
		Config: config,
	}, nil
}

// Defaults fill in parameters a spec leaves out.
type Defaults struct {
	Trello TrelloConfig
}

// CreateSource builds the CardSource a parsed source spec names.
func CreateSource(spec SourceSpec, defaults Defaults) (CardSource, error) {
	switch spec.Type {
	case SourceTypeTrello:
		cfg := defaults.Trello
		if v := spec.Config["key"]; v != "" {
			cfg.APIKey = v
		}
		if v := spec.Config["token"]; v != "" {
			cfg.Token = v
		}
		if v := spec.Config["base_url"]; v != "" {
			cfg.BaseURL = v
		}
		if v := spec.Config["timeout"]; v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%w: timeout: %v", ErrInvalidConfig, err)
			}
			cfg.Timeout = d
		}
		return NewTrelloSource(cfg)

	case SourceTypeJSONFile:
		return NewFileSource(spec.Config["path"])

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, spec.Type)
	}
}

// CreateSourceFromString parses spec and creates the source.
func CreateSourceFromString(spec string, defaults Defaults) (CardSource, error) {
	parsed, err := ParseSourceSpec(spec)
	if err != nil {
		return nil, err
	}
	return CreateSource(parsed, defaults)
}
