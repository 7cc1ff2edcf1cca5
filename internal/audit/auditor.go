// Package audit asks an external text-generation service for an advisory
// APPROVE/REJECT verdict on a trade rationale.
package audit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// ErrUnparsable means the service answered but no verdict could be read.
var ErrUnparsable = errors.New("audit verdict unparsable")

const systemPrompt = `You are a risk reviewer for an automated trading system.
Read the trade rationale and answer with strict JSON only:
{"verdict":"APPROVE"|"REJECT","comment":"<one sentence>"}`

// Completer is the text-generation call the auditor needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Verdict is the parsed answer.
type Verdict struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Auditor sends rationales to a Completer and parses the answer.
type Auditor struct {
	llm    Completer
	logger zerolog.Logger
}

func New(llm Completer, logger zerolog.Logger) *Auditor {
	return &Auditor{llm: llm, logger: logger.With().Str("component", "Auditor").Logger()}
}

// Audit returns the verdict for rationale. Transport failures are returned
// wrapped; an answer without a verdict yields ErrUnparsable.
func (a *Auditor) Audit(ctx context.Context, rationale string) (Verdict, error) {
	out, err := a.llm.Complete(ctx, systemPrompt, "Trade rationale:\n"+rationale)
	if err != nil {
		return Verdict{}, fmt.Errorf("audit request: %w", err)
	}
	v, err := ParseVerdict(out)
	if err != nil {
		a.logger.Debug().Str("response", out).Msg("Audit response had no verdict")
		return Verdict{}, err
	}
	return v, nil
}

var verdictWord = regexp.MustCompile(`\b(APPROVE|APPROVED|REJECT|REJECTED)\b`)

// ParseVerdict reads a JSON object when present, otherwise a bare
// APPROVE/REJECT keyword. Text mentioning both keywords is ambiguous.
func ParseVerdict(text string) (Verdict, error) {
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if obj := text[start : end+1]; gjson.Valid(obj) {
			if v, ok := verdictFromJSON(gjson.Parse(obj)); ok {
				return v, nil
			}
		}
	}

	matches := verdictWord.FindAllString(strings.ToUpper(text), -1)
	approve, reject := false, false
	for _, m := range matches {
		if strings.HasPrefix(m, "APPROVE") {
			approve = true
		} else {
			reject = true
		}
	}
	if approve == reject {
		return Verdict{}, ErrUnparsable
	}
	return Verdict{Approved: approve, Comment: strings.TrimSpace(text)}, nil
}

func verdictFromJSON(doc gjson.Result) (Verdict, bool) {
	comment := doc.Get("comment").String()
	if comment == "" {
		comment = doc.Get("reason").String()
	}
	for _, field := range []string{"verdict", "decision"} {
		switch strings.ToUpper(strings.TrimSpace(doc.Get(field).String())) {
		case "APPROVE", "APPROVED":
			return Verdict{Approved: true, Comment: comment}, true
		case "REJECT", "REJECTED":
			return Verdict{Approved: false, Comment: comment}, true
		}
	}
	if b := doc.Get("approved"); b.IsBool() {
		return Verdict{Approved: b.Bool(), Comment: comment}, true
	}
	return Verdict{}, false
}
