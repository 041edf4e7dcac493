package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mchatbot.io/support-backend/internal/response"
)

//go:embed catalog/coping_strategies.yaml
var defaultCatalog []byte

const strategyColumns = "id, name, category, description, instructions, duration_minutes, difficulty_level, effectiveness_emotions"

// ParseCatalog decodes a YAML list of coping strategies.
func ParseCatalog(r io.Reader) ([]response.CopingStrategy, error) {
	var strategies []response.CopingStrategy
	if err := yaml.NewDecoder(r).Decode(&strategies); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	for i, st := range strategies {
		if strings.TrimSpace(st.Name) == "" || strings.TrimSpace(st.Instructions) == "" {
			return nil, fmt.Errorf("catalog entry %d: name and instructions are required", i)
		}
		if st.Category == "" {
			strategies[i].Category = "general"
		}
	}
	return strategies, nil
}

// SeedDefaultStrategies loads the built-in catalog if no strategies exist yet.
// It returns the number of strategies inserted.
func (s *SQLiteStore) SeedDefaultStrategies(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM coping_strategies").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count coping strategies: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	strategies, err := ParseCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		return 0, fmt.Errorf("built-in catalog: %w", err)
	}
	if err := s.ReplaceCopingStrategies(ctx, strategies); err != nil {
		return 0, err
	}
	return len(strategies), nil
}

// IngestCatalogFromFile replaces the strategy catalog with the contents of a
// YAML file.
func (s *SQLiteStore) IngestCatalogFromFile(ctx context.Context, filePath string) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open catalog file %s: %w", filePath, err)
	}
	defer f.Close()

	strategies, err := ParseCatalog(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filePath, err)
	}
	if len(strategies) == 0 {
		return 0, fmt.Errorf("%s: catalog is empty", filePath)
	}
	if err := s.ReplaceCopingStrategies(ctx, strategies); err != nil {
		return 0, err
	}
	return len(strategies), nil
}

// ReplaceCopingStrategies swaps the whole catalog in one transaction.
func (s *SQLiteStore) ReplaceCopingStrategies(ctx context.Context, strategies []response.CopingStrategy) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM coping_strategies"); err != nil {
		return fmt.Errorf("failed to delete coping strategies: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO coping_strategies (name, category, description, instructions, duration_minutes, difficulty_level, effectiveness_emotions) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare coping strategy insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range strategies {
		emotions, encErr := encodeList(st.Emotions)
		if encErr != nil {
			return encErr
		}
		if _, err = stmt.ExecContext(ctx, st.Name, st.Category, st.Description, st.Instructions,
			st.DurationMinutes, st.Difficulty, emotions); err != nil {
			return fmt.Errorf("failed to insert coping strategy %q: %w", st.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit coping strategies: %w", err)
	}
	return nil
}

// FindCopingStrategy returns the first strategy whose applicable emotions
// mention emotion, or nil when none does.
func (s *SQLiteStore) FindCopingStrategy(ctx context.Context, emotion string) (*response.CopingStrategy, error) {
	emotion = strings.TrimSpace(emotion)
	if emotion == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(emotion) + "%"
	row := s.db.QueryRowContext(ctx,
		"SELECT "+strategyColumns+" FROM coping_strategies WHERE effectiveness_emotions LIKE ? ESCAPE '\\' ORDER BY id LIMIT 1", pattern)

	var (
		st         response.CopingStrategy
		duration   sql.NullInt64
		difficulty sql.NullString
		emotions   sql.NullString
	)
	err := row.Scan(&st.ID, &st.Name, &st.Category, &st.Description, &st.Instructions, &duration, &difficulty, &emotions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query coping strategy: %w", err)
	}
	st.DurationMinutes = int(duration.Int64)
	st.Difficulty = difficulty.String
	if emotions.Valid && emotions.String != "" {
		if err := json.Unmarshal([]byte(emotions.String), &st.Emotions); err != nil {
			return nil, fmt.Errorf("failed to decode emotions for strategy %d: %w", st.ID, err)
		}
	}
	return &st, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
