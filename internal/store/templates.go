package store

import (
	"context"
	"fmt"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/typeid"
)

// CreateTemplate inserts tmpl and its fields in one transaction.
func (s *Store) CreateTemplate(ctx context.Context, tmpl *model.Template) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateTemplate", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO templates (id, base_file) VALUES ($1, $2)`, tmpl.ID, tmpl.BaseFile)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateTemplate", fmt.Errorf("insert template: %w", err))
	}

	for _, f := range tmpl.Fields {
		_, err = tx.Exec(ctx, `
			INSERT INTO template_fields
				(id, template_id, signing_order, field_type, required, page, rect_top, rect_left, rect_width, rect_height)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			f.ID, tmpl.ID, f.SigningOrder, f.FieldType, f.Required, f.Page,
			f.Rect.Top, f.Rect.Left, f.Rect.Width, f.Rect.Height,
		)
		if err != nil {
			return esignerr.New(esignerr.StorageError, "store.CreateTemplate", fmt.Errorf("insert field %s: %w", f.ID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return esignerr.New(esignerr.StorageError, "store.CreateTemplate", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetTemplate loads a template and its fields by id.
func (s *Store) GetTemplate(ctx context.Context, id typeid.Template) (*model.Template, error) {
	var tmpl model.Template
	err := s.pool.QueryRow(ctx, `SELECT id, base_file FROM templates WHERE id = $1`, id).Scan(&tmpl.ID, &tmpl.BaseFile)
	if err != nil {
		return nil, esignerr.New(esignerr.NotFound, "store.GetTemplate", fmt.Errorf("template %s: %w", id, err))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, signing_order, field_type, required, page, rect_top, rect_left, rect_width, rect_height
		FROM template_fields WHERE template_id = $1 ORDER BY signing_order, page`, id)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.GetTemplate", fmt.Errorf("query fields: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var f model.TemplateField
		if err := rows.Scan(&f.ID, &f.SigningOrder, &f.FieldType, &f.Required, &f.Page,
			&f.Rect.Top, &f.Rect.Left, &f.Rect.Width, &f.Rect.Height); err != nil {
			return nil, esignerr.New(esignerr.StorageError, "store.GetTemplate", fmt.Errorf("scan field: %w", err))
		}
		tmpl.Fields = append(tmpl.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.GetTemplate", err)
	}

	return &tmpl, nil
}

// ListTemplates returns every template's id and base file, without fields
// (spec.md §6 GET /template is a listing endpoint).
func (s *Store) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, base_file FROM templates ORDER BY created_at`)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.ListTemplates", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(&t.ID, &t.BaseFile); err != nil {
			return nil, esignerr.New(esignerr.StorageError, "store.ListTemplates", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
