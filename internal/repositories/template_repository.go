package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"forge/internal/httpkit"
	"forge/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTemplateNotFound = errors.New("template not found")
var ErrTemplateNameExists = errors.New("template name already exists")

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	definition, err := json.Marshal(t)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO templates (id, name, definition_json)
		VALUES ($1,$2,$3::jsonb)
		RETURNING created_at
	`, t.ID, t.Name, definition).Scan(&t.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrTemplateNameExists
		}
		return err
	}
	return nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, definition_json, created_at
		FROM templates
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var (
			id, name   string
			definition []byte
		)
		var t models.Template
		if err := rows.Scan(&id, &name, &definition, &t.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := models.ParseTemplateDefinition(id, name, definition)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", id, err)
		}
		parsed.CreatedAt = t.CreatedAt
		out = append(out, *parsed)
	}
	return out, rows.Err()
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	var (
		name       string
		definition []byte
		t          models.Template
	)
	err := r.db.QueryRow(ctx, `
		SELECT name, definition_json, created_at
		FROM templates
		WHERE id=$1 AND deleted_at IS NULL
	`, id).Scan(&name, &definition, &t.CreatedAt)
	if err != nil {
		return nil, ErrTemplateNotFound
	}

	parsed, err := models.ParseTemplateDefinition(id, name, definition)
	if err != nil {
		return nil, err
	}
	parsed.CreatedAt = t.CreatedAt
	return parsed, nil
}

// GetMany loads the templates for a batch in the order the ids were given.
// A missing or deleted id fails the whole lookup.
func (r *TemplateRepository) GetMany(ctx context.Context, ids []string) ([]*models.Template, error) {
	out := make([]*models.Template, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", id, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Update replaces the name and definition of an existing template.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	definition, err := json.Marshal(t)
	if err != nil {
		return err
	}

	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET name=$2, definition_json=$3::jsonb
		WHERE id=$1 AND deleted_at IS NULL
	`, t.ID, t.Name, definition)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrTemplateNameExists
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET deleted_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
