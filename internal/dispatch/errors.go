package dispatch

import (
	"context"
	"errors"

	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

// ToDomainError maps an error onto its stable wire code. The message keeps
// the full error text so the offending token or position is visible.
func ToDomainError(err error) *chessdto.DomainError {
	if err == nil {
		return nil
	}
	de := &chessdto.DomainError{Code: chessdto.CodeInternal, Message: err.Error()}
	switch {
	case errors.Is(err, rules.ErrInvalidPosition):
		de.Code = chessdto.CodeInvalidPosition
	case errors.Is(err, rules.ErrIllegalMove):
		de.Code = chessdto.CodeIllegalMove
	case errors.Is(err, chess.ErrEngineUnavailable):
		de.Code = chessdto.CodeEngineUnavailable
		de.Retryable = true
	case errors.Is(err, chess.ErrAnalysisFailed), errors.Is(err, context.DeadlineExceeded):
		de.Code = chessdto.CodeAnalysisFailed
		de.Retryable = true
	case errors.Is(err, ErrUnknownCommand):
		de.Code = chessdto.CodeUnknownCommand
	case errors.Is(err, ErrInvalidArguments):
		de.Code = chessdto.CodeInvalidArguments
	}
	return de
}
