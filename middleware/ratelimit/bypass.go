package ratelimit

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BypassPolicy decide quais requisições nunca consomem token.
//
// ExemptPaths usa padrões estilo Ant, casados com doublestar: "?" casa um
// caractere, "*" qualquer sequência dentro de um segmento e "**" zero ou mais
// segmentos ("/actuator/**" casa "/actuator" e "/actuator/health/liveness").
// Classes "[...]", alternativas "{a,b}" e "\" não existem em Ant e são
// tratados como literais. ExemptMethods compara sem diferenciar maiúsculas.
type BypassPolicy struct {
	ExemptPaths   []string
	ExemptMethods []string
}

func (p BypassPolicy) Matches(method, reqPath string) bool {
	for _, m := range p.ExemptMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	if len(p.ExemptPaths) == 0 {
		return false
	}

	reqPath = normalizePath(reqPath)
	for _, pat := range p.ExemptPaths {
		if matchAnt(normalizePath(pat), reqPath) {
			return true
		}
	}
	return false
}

// normalizePath garante "/" inicial e remove o "/" final.
func normalizePath(p string) string {
	return "/" + strings.Trim(p, "/")
}

func matchAnt(pat, reqPath string) bool {
	if base, ok := strings.CutSuffix(pat, "/**"); ok && (base == "" || base == reqPath) {
		return true
	}
	ok, err := doublestar.Match(escapeAnt(pat), reqPath)
	return err == nil && ok
}

var antEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`)

func escapeAnt(pat string) string {
	return antEscaper.Replace(pat)
}
