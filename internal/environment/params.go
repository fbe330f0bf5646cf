package environment

import (
	"fmt"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// requireString возвращает обязательный строковый параметр.
func requireString(a domain.Action, key string) (string, error) {
	v, ok := a.Param(key)
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s requires %q", ErrMissingParam, a.Name, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s.%s must be a non-empty string, got %T", ErrInvalidParam, a.Name, key, v)
	}
	return s, nil
}

// optionalString возвращает строковый параметр или def.
func optionalString(a domain.Action, key, def string) string {
	if v, ok := a.Param(key); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// stringList принимает строку или список строк.
func stringList(a domain.Action, key string, required bool) ([]string, error) {
	v, ok := a.Param(key)
	if !ok || v == nil {
		if required {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingParam, a.Name, key)
		}
		return nil, nil
	}

	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s items must be strings, got %T", ErrInvalidParam, a.Name, key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s.%s must be a string or list, got %T", ErrInvalidParam, a.Name, key, v)
	}
}
