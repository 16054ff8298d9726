package controller

import (
	"fmt"
	"regexp"
	"strconv"
)

// ActionParams is the untyped parameter bag attached to a decision. Values
// come straight from JSON decoding, so numbers arrive as float64; the getters
// normalize the types capability handlers work with.
type ActionParams map[string]interface{}

var nonDigits = regexp.MustCompile(`\D`)

// ParamKind is the declared type of a capability parameter.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamBool
	ParamNumber
	// ParamIndex accepts a number or a decorated numeric string ("[12]").
	ParamIndex
)

// ParamSpec declares one parameter of a capability's schema. Dispatch
// validates the request against the schema before the handler runs, so a
// rejected request has no side effects on the target.
type ParamSpec struct {
	Name     string
	Kind     ParamKind
	Required bool
}

// validateParams checks a parameter bag against a capability's declared
// schema.
func validateParams(specs []ParamSpec, params map[string]interface{}) error {
	for _, spec := range specs {
		v, ok := params[spec.Name]
		if !ok {
			if spec.Required {
				return &InvalidParamsError{Field: spec.Name, Reason: "required parameter is missing"}
			}
			continue
		}
		switch spec.Kind {
		case ParamString:
			if _, ok := v.(string); !ok {
				return &InvalidParamsError{Field: spec.Name, Reason: fmt.Sprintf("expected string, got %T", v)}
			}
		case ParamBool:
			if _, ok := v.(bool); !ok {
				return &InvalidParamsError{Field: spec.Name, Reason: fmt.Sprintf("expected bool, got %T", v)}
			}
		case ParamNumber:
			switch v.(type) {
			case float64, float32, int, int64:
			default:
				return &InvalidParamsError{Field: spec.Name, Reason: fmt.Sprintf("expected number, got %T", v)}
			}
		case ParamIndex:
			switch n := v.(type) {
			case float64, int:
			case string:
				if nonDigits.ReplaceAllString(n, "") == "" {
					return &InvalidParamsError{Field: spec.Name, Reason: "should be a valid number"}
				}
			default:
				return &InvalidParamsError{Field: spec.Name, Reason: fmt.Sprintf("expected number, got %T", v)}
			}
		}
	}
	return nil
}

// String returns the named parameter as a string.
func (p ActionParams) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", &InvalidParamsError{Field: key, Reason: "required parameter is missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidParamsError{Field: key, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

// Bool returns the named parameter as a bool. A missing parameter defaults
// to false.
func (p ActionParams) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &InvalidParamsError{Field: key, Reason: fmt.Sprintf("expected bool, got %T", v)}
	}
	return b, nil
}

// Int returns the named parameter as an int, accepting the numeric types
// JSON decoding produces.
func (p ActionParams) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, &InvalidParamsError{Field: key, Reason: "required parameter is missing"}
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float32:
		return int(n), nil
	default:
		return 0, &InvalidParamsError{Field: key, Reason: fmt.Sprintf("expected number, got %T", v)}
	}
}

// Index returns the named parameter as an element index. Oracles sometimes
// emit indices as decorated strings (e.g. "[12]" or "idx 12"); any non-digit
// characters are stripped before parsing.
func (p ActionParams) Index(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, &InvalidParamsError{Field: key, Reason: "required parameter is missing"}
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		cleaned := nonDigits.ReplaceAllString(n, "")
		if cleaned == "" {
			return 0, &InvalidParamsError{Field: key, Reason: "should be a valid number"}
		}
		idx, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0, &InvalidParamsError{Field: key, Reason: "should be a valid number"}
		}
		return idx, nil
	default:
		return 0, &InvalidParamsError{Field: key, Reason: fmt.Sprintf("expected number, got %T", v)}
	}
}
