package archive

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/domain"
	"github.com/park285/cheese-analyzer/internal/session"
)

// MethodAbandoned marks games archived before reaching a terminal position.
const MethodAbandoned = "abandoned"

// Recorder turns session records into archived games.
type Recorder struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

// ArchiveGame stores rec. A game already in the archive is not an error.
func (r *Recorder) ArchiveGame(ctx context.Context, rec session.Record) error {
	game := FromRecord(rec, r.now())
	err := r.repo.InsertGame(ctx, game)
	if errors.Is(err, ErrDuplicateGame) {
		r.logger.Debug("archive_duplicate", zap.String("game_id", game.ID))
		return nil
	}
	return err
}

func (r *Recorder) RecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	return r.repo.RecentGames(ctx, sessionID, limit)
}

func (r *Recorder) GetGame(ctx context.Context, id string) (*domain.ArchivedGame, error) {
	return r.repo.GetGame(ctx, id)
}

// FromRecord derives the stored form of rec, including its result and PGN.
func FromRecord(rec session.Record, endedAt time.Time) *domain.ArchivedGame {
	st := rec.Status
	game := &domain.ArchivedGame{
		ID:        rec.GameID,
		SessionID: rec.SessionID,
		MovesSAN:  append([]string(nil), rec.Moves...),
		FinalFEN:  st.FEN,
		StartedAt: rec.StartedAt,
		EndedAt:   endedAt,
	}
	game.Result, game.ResultMethod = resultOf(st)
	if !rec.StartedAt.IsZero() && endedAt.After(rec.StartedAt) {
		game.Duration = endedAt.Sub(rec.StartedAt)
	}
	if op := rules.OpeningFor(rec.Moves); op.Code != "" {
		game.ECO = op.Code
		game.Opening = op.Title
	}
	game.PGN = BuildPGN(game)
	return game
}

func resultOf(st session.StatusSnapshot) (result, method string) {
	switch st.Label {
	case rules.LabelCheckmate:
		if st.Winner == rules.White {
			return domain.ResultWhiteWins, string(st.Label)
		}
		return domain.ResultBlackWins, string(st.Label)
	case rules.LabelStalemate, rules.LabelInsufficientMaterial, rules.LabelSeventyFiveMoves, rules.LabelFivefoldRepetition:
		return domain.ResultDraw, string(st.Label)
	default:
		return domain.ResultUnfinished, MethodAbandoned
	}
}
