package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/park285/cheese-analyzer/internal/domain"
)

var (
	ErrDuplicateGame = errors.New("chess game already exists")
	ErrGameNotFound  = errors.New("chess game not found")
)

type Repository interface {
	InsertGame(ctx context.Context, game *domain.ArchivedGame) error
	RecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error)
	GetGame(ctx context.Context, id string) (*domain.ArchivedGame, error)
}

const defaultRecentLimit = 10

const schema = `
CREATE TABLE IF NOT EXISTS archived_games (
	id            UUID PRIMARY KEY,
	session_id    TEXT        NOT NULL,
	moves_san     JSONB       NOT NULL,
	final_fen     TEXT        NOT NULL,
	result        TEXT        NOT NULL,
	result_method TEXT        NOT NULL,
	eco           TEXT        NOT NULL DEFAULT '',
	opening       TEXT        NOT NULL DEFAULT '',
	pgn           TEXT        NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS archived_games_session_idx ON archived_games (session_id, ended_at DESC);`

type repository struct {
	db *sql.DB
}

// NewRepository returns a Postgres-backed Repository. db must use the
// lib/pq driver.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// EnsureSchema creates the archive table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

func (r *repository) InsertGame(ctx context.Context, game *domain.ArchivedGame) error {
	if game == nil {
		return fmt.Errorf("nil archived game")
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO archived_games (
			id,
			session_id,
			moves_san,
			final_fen,
			result,
			result_method,
			eco,
			opening,
			pgn,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`

	var id sql.NullString
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.ID,
		game.SessionID,
		movesSAN,
		game.FinalFEN,
		game.Result,
		game.ResultMethod,
		game.ECO,
		game.Opening,
		game.PGN,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return ErrDuplicateGame
	}
	if err != nil {
		return fmt.Errorf("insert archived game: %w", err)
	}
	return nil
}

const selectColumns = `
		SELECT
			id,
			session_id,
			moves_san,
			final_fen,
			result,
			result_method,
			eco,
			opening,
			pgn,
			started_at,
			ended_at,
			duration_ms
		FROM archived_games`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.ArchivedGame, error) {
	var (
		game       domain.ArchivedGame
		movesJSON  []byte
		durationMS sql.NullInt64
	)
	if err := row.Scan(
		&game.ID,
		&game.SessionID,
		&movesJSON,
		&game.FinalFEN,
		&game.Result,
		&game.ResultMethod,
		&game.ECO,
		&game.Opening,
		&game.PGN,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	); err != nil {
		return nil, err
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}

func (r *repository) RecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE session_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select archived games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ArchivedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived game: %w", err)
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGame(ctx context.Context, id string) (*domain.ArchivedGame, error) {
	game, err := scanGame(r.db.QueryRowContext(ctx, selectColumns+`
		WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select archived game: %w", err)
	}
	return game, nil
}
