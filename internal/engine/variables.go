package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// PipelineScope — scope для переменных, переданных при запуске pipeline.
const PipelineScope = "pipeline"

// placeholderRe находит ссылки вида ${scope.key}.
var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Variables — контекст переменных одного прогона pipeline.
//
// Ключи имеют вид "scope.key": "pipeline.<key>" для переменных запуска
// и "<step>.<key>" для outputs выполненных шагов. Контекст только растёт
// и принадлежит одному прогону. Синхронизации нет.
type Variables struct {
	values map[string]any
}

// NewVariables создаёт контекст и кладёт initial под scope "pipeline".
func NewVariables(initial map[string]any) *Variables {
	v := &Variables{values: make(map[string]any, len(initial))}
	for k, val := range initial {
		v.values[PipelineScope+"."+k] = val
	}
	return v
}

// Set устанавливает значение по полному ключу "scope.key".
func (v *Variables) Set(ref string, value any) {
	v.values[ref] = value
}

// Get возвращает значение по полному ключу "scope.key".
func (v *Variables) Get(ref string) (any, bool) {
	val, ok := v.values[ref]
	return val, ok
}

// Store записывает каждый ключ data шага как "<step>.<key>".
func (v *Variables) Store(out *domain.StepOutput) {
	if out == nil {
		return
	}
	for k, val := range out.Data {
		v.values[out.StepName+"."+k] = val
	}
}

// Resolve подставляет значения во все ${scope.key}, которые есть в контексте.
// Неизвестные ссылки остаются как есть.
func (v *Variables) Resolve(tmpl string) string {
	if !strings.Contains(tmpl, "${") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		ref := match[2 : len(match)-1]
		val, ok := v.values[ref]
		if !ok {
			return match
		}
		return formatValue(val)
	})
}

// ResolveInputs применяет Resolve ко всем строковым значениям map.
//
// Нестроковые значения копируются без изменений. Если строка целиком
// состоит из одной известной ссылки, подставляется само значение с его
// типом (список остаётся списком).
func (v *Variables) ResolveInputs(inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, val := range inputs {
		s, ok := val.(string)
		if !ok {
			out[k] = val
			continue
		}
		if ref, whole := wholeReference(s); whole {
			if resolved, found := v.values[ref]; found {
				out[k] = resolved
				continue
			}
		}
		out[k] = v.Resolve(s)
	}
	return out
}

// Snapshot возвращает копию всех переменных.
func (v *Variables) Snapshot() map[string]any {
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Len возвращает количество переменных.
func (v *Variables) Len() int {
	return len(v.values)
}

// wholeReference проверяет, что s — ровно одна ссылка ${ref}.
func wholeReference(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	ref := s[2 : len(s)-1]
	if ref == "" || strings.ContainsAny(ref, "{}") {
		return "", false
	}
	return ref, true
}

// formatValue приводит значение к строке для подстановки в шаблон.
func formatValue(val any) string {
	switch x := val.(type) {
	case string:
		return x
	case nil:
		return ""
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}
