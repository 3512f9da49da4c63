package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/services"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *api.User
	Nav         []nav.Item
	Switcher    []services.Option
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	printer := message.NewPrinter(language.English)
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "-"
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"money": func(v any) string {
			switch n := v.(type) {
			case api.Decimal:
				return formatMoney(printer, float64(n))
			case float64:
				return formatMoney(printer, n)
			case int:
				return formatMoney(printer, float64(n))
			default:
				return fmt.Sprint(v)
			}
		},
		"count": func(v any) string {
			return printer.Sprint(number.Decimal(v))
		},
		"percent": func(v float64) string {
			return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(1))) + "%"
		},
		"initials": func(u *api.User) string {
			if u == nil {
				return ""
			}
			name := []rune(u.DisplayName())
			if len(name) == 0 {
				return "?"
			}
			return strings.ToUpper(string(name[0]))
		},
		"dict": dict,
		"title": func(s string) string {
			s = strings.ReplaceAll(s, "_", " ")
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, web.TemplatePatterns...)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// dict builds a map from alternating keys and values so templates can pass
// several values to a nested template.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

func formatMoney(p *message.Printer, v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + p.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Render executes a named template with TemplateData. Output is buffered so
// a failing template never leaves a half-written page.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}
