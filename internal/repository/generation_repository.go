package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const generationColumns = `id, account_id, template_id, model_key, source_image_url, template_image_url, result_image_url, cost, created_at`

func scanGeneration(row interface{ Scan(...any) error }) (*models.Generation, error) {
	var g models.Generation
	if err := row.Scan(&g.ID, &g.AccountID, &g.TemplateID, &g.ModelKey, &g.SourceImageURL, &g.TemplateImageURL, &g.ResultImageURL, &g.Cost, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts the row through exec, which is the debit transaction on the
// generation path.
func (r *GenerationRepository) Create(ctx context.Context, exec database.Executor, g *models.Generation) error {
	const query = `
INSERT INTO generations (id, account_id, template_id, model_key, source_image_url, template_image_url, result_image_url, cost, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if g.CreatedAt.IsZero() {
		g.CreatedAt = database.Now()
	}
	if _, err := exec.ExecContext(ctx, query, g.ID, g.AccountID, g.TemplateID, g.ModelKey, g.SourceImageURL, g.TemplateImageURL, g.ResultImageURL, g.Cost, g.CreatedAt); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (r *GenerationRepository) FindByID(ctx context.Context, id string) (*models.Generation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	g, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan generation: %w", err)
	}
	return g, nil
}

func (r *GenerationRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Generation, error) {
	const query = `SELECT ` + generationColumns + `
FROM generations
WHERE account_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	generations := []models.Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation list: %w", err)
		}
		generations = append(generations, *g)
	}
	return generations, rows.Err()
}

func (r *GenerationRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations WHERE account_id = ?`, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count generations: %w", err)
	}
	return count, nil
}
