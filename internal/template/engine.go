// Package template renders Liquid merge fields into outreach subjects and
// bodies so each queued email can be personalized per lead.
package template

import (
	"fmt"
	"html"
	"log"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// RenderMode determines how the engine handles render errors
type RenderMode int

const (
	// RenderModeLax returns the original template on errors (production sends)
	RenderModeLax RenderMode = iota
	// RenderModeStrict surfaces undefined variables and errors (preview/validation)
	RenderModeStrict
)

// Engine handles Liquid template rendering with caching
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// ValidationError represents a validation issue in a template
type ValidationError struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// RenderResult contains the rendered output and any warnings
type RenderResult struct {
	Output   string            `json:"output"`
	Warnings []ValidationError `json:"warnings,omitempty"`
	Success  bool              `json:"success"`
}

// NewEngine creates a template engine with the outreach filter set registered
func NewEngine() *Engine {
	e := &Engine{
		engine: liquid.NewEngine(),
	}

	e.registerFilters()

	return e
}

// registerFilters adds outreach-specific Liquid filters
func (e *Engine) registerFilters() {
	// Default value filter: {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ first_name | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Title case: {{ company | titlecase }}
	e.engine.RegisterFilter("titlecase", func(s string) string {
		return strings.Title(strings.ToLower(s))
	})

	// Truncate with ellipsis: {{ pitch | truncate: 50 }}
	e.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// URL encode: {{ email | urlencode }}
	e.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// HTML escape (safety): {{ notes | escape }}
	e.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Extract domain from email: {{ email | email_domain }}
	e.engine.RegisterFilter("email_domain", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	})

	// Mask email for privacy: {{ email | mask_email }}
	e.engine.RegisterFilter("mask_email", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) != 2 {
			return email
		}
		local := parts[0]
		domain := parts[1]

		if len(local) <= 2 {
			return local + "***@" + domain
		}
		return local[:2] + "***@" + domain
	})

	// Check if value is present (not nil/empty): {{ company | present }}
	e.engine.RegisterFilter("present", func(value interface{}) bool {
		if value == nil {
			return false
		}
		strVal := fmt.Sprintf("%v", value)
		return strVal != "" && strVal != "<nil>" && strVal != "0" && strVal != "false"
	})

	// Check if value is blank: {{ company | blank }}
	e.engine.RegisterFilter("blank", func(value interface{}) bool {
		if value == nil {
			return true
		}
		strVal := fmt.Sprintf("%v", value)
		return strVal == "" || strVal == "<nil>"
	})
}

// Parse compiles a template string and returns any syntax errors
func (e *Engine) Parse(templateStr string) error {
	_, err := e.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given merge variables.
// Uses caching for repeated renders of the same template.
func (e *Engine) Render(cacheKey string, templateStr string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			tpl := cached.(*liquid.Template)
			return tpl.RenderString(vars)
		}
	}

	tpl, err := e.engine.ParseString(templateStr)
	if err != nil {
		log.Printf("[Template] Parse error: %v", err)
		return templateStr, err // Return original on parse error
	}

	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}

	result, err := tpl.RenderString(vars)
	if err != nil {
		log.Printf("[Template] Render error: %v", err)
		return templateStr, err
	}

	return result, nil
}

// RenderWithMode processes a template with configurable error handling
func (e *Engine) RenderWithMode(templateStr string, vars map[string]interface{}, mode RenderMode) (*RenderResult, error) {
	result := &RenderResult{
		Success:  true,
		Warnings: []ValidationError{},
	}

	// Validate variables in strict mode
	if mode == RenderModeStrict {
		warnings := e.ValidateVariables(templateStr, vars)
		result.Warnings = warnings
		if len(warnings) > 0 {
			result.Success = false
			// Still try to render
		}
	}

	output, err := e.engine.ParseAndRenderString(templateStr, vars)
	if err != nil {
		if mode == RenderModeStrict {
			return result, err
		}
		// Lax mode: return original template on error
		result.Output = templateStr
		result.Success = false
		log.Printf("[Template] Lax mode render warning: %v", err)
		return result, nil
	}

	result.Output = output
	return result, nil
}

// ValidateVariables checks for undefined variables in a template
func (e *Engine) ValidateVariables(templateStr string, vars map[string]interface{}) []ValidationError {
	var errors []ValidationError

	// Matches: {{ var }}, {{ var | filter }}, {{ var.nested }}
	varPattern := regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)

	matches := varPattern.FindAllStringSubmatch(templateStr, -1)
	seen := make(map[string]bool)

	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		varName := strings.TrimSpace(match[1])

		if seen[varName] {
			continue
		}
		seen[varName] = true

		if isLiquidKeyword(varName) {
			continue
		}

		if !e.variableExists(varName, vars) {
			errors = append(errors, ValidationError{
				Variable: varName,
				Message:  fmt.Sprintf("Variable '%s' may not be defined for all leads", varName),
			})
		}
	}

	return errors
}

// variableExists checks if a variable path exists in the merge context
func (e *Engine) variableExists(varPath string, vars map[string]interface{}) bool {
	parts := strings.Split(varPath, ".")

	var current interface{} = vars
	for _, part := range parts {
		switch v := current.(type) {
		case map[string]interface{}:
			val, ok := v[part]
			if !ok {
				return false
			}
			current = val
		default:
			return false
		}
	}

	return true
}

// ClearCache removes all cached templates
func (e *Engine) ClearCache() {
	e.cache = sync.Map{}
}

// ClearCacheKey removes a specific cached template
func (e *Engine) ClearCacheKey(key string) {
	e.cache.Delete(key)
}

// isLiquidKeyword checks if a name is a Liquid control keyword
func isLiquidKeyword(name string) bool {
	keywords := map[string]bool{
		"if": true, "elsif": true, "else": true, "endif": true,
		"unless": true, "endunless": true,
		"case": true, "when": true, "endcase": true,
		"for": true, "endfor": true, "break": true, "continue": true,
		"capture": true, "endcapture": true,
		"comment": true, "endcomment": true,
		"raw": true, "endraw": true,
		"assign": true, "increment": true, "decrement": true,
		"include": true, "render": true,
		"forloop": true, "tablerowloop": true,
		"limit": true, "offset": true, "reversed": true,
		"cols": true, "item": true, "empty": true,
		"true": true, "false": true, "nil": true, "null": true,
		"blank": true, "present": true,
		"and": true, "or": true, "not": true,
		"contains": true, "in": true,
	}
	return keywords[strings.ToLower(name)]
}
