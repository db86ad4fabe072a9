package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-analyzer/internal/domain"
)

const pgnEvent = "Cheese Analyzer"

// BuildPGN renders g as a PGN game with a seven-tag roster and numbered movetext.
func BuildPGN(g *domain.ArchivedGame) string {
	if g == nil {
		return ""
	}
	result := g.Result
	if result == "" {
		result = domain.ResultUnfinished
	}
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"%s\"]\n", pgnEvent)
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(g.SessionID))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	b.WriteString("[Round \"-\"]\n")
	b.WriteString("[White \"White\"]\n")
	b.WriteString("[Black \"Black\"]\n")
	fmt.Fprintf(&b, "[Result \"%s\"]\n", result)
	if g.ECO != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", sanitizePGN(g.ECO))
	}
	if g.Opening != "" {
		fmt.Fprintf(&b, "[Opening \"%s\"]\n", sanitizePGN(g.Opening))
	}
	if g.ResultMethod != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(g.ResultMethod))
	}
	b.WriteString("\n")

	for i := 0; i < len(g.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(g.MovesSAN[i]))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
