package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/franz/catstats/internal/catalog"
)

// Selection narrows stored field groups for reporting. Empty string fields
// do not filter. Values are compared exactly.
type Selection struct {
	StartYM   string
	EndYM     string
	CatCenter string
	Cataloger string
	Language  string
	Place     string
	Project   string
}

// FieldGroupView is a stored field group joined with its bib attributes
type FieldGroupView struct {
	catalog.FieldGroup
	LanguageCode string
	PlaceCode    string
	MaterialType string
	ResourceType string
}

// SelectFieldGroups returns the field groups matching sel, with their
// repeatable occurrences loaded
func (s *Store) SelectFieldGroups(ctx context.Context, sel Selection) ([]FieldGroupView, error) {
	query, args := sel.sql()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select field groups: %w", err)
	}
	defer rows.Close()

	var views []FieldGroupView
	index := make(map[int64]int)
	for rows.Next() {
		var v FieldGroupView
		if err := rows.Scan(&v.ID, &v.BibID, &v.MMSID, &v.CatCenter, &v.Cataloger, &v.YearMonth,
			&v.Difficulty, &v.MaintInfo, &v.NationalInfo, &v.NacoInfo, &v.SacoInfo, &v.Project,
			&v.LanguageCode, &v.PlaceCode, &v.MaterialType, &v.ResourceType); err != nil {
			return nil, err
		}
		index[v.ID] = len(views)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return views, nil
	}

	// Load repeatables in one pass over the same selection
	repQuery := `
		SELECT r.field_id, r.subfield_code, r.subfield_value
		FROM repeatable_subfields r
		WHERE r.field_id IN (SELECT id FROM (` + query + `))
		ORDER BY r.id`
	repRows, err := s.db.QueryContext(ctx, repQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select repeatable subfields: %w", err)
	}
	defer repRows.Close()

	for repRows.Next() {
		var fieldID int64
		var rv catalog.RepeatableValue
		if err := repRows.Scan(&fieldID, &rv.Code, &rv.Value); err != nil {
			return nil, err
		}
		if i, ok := index[fieldID]; ok {
			views[i].Repeatables = append(views[i].Repeatables, rv)
		}
	}

	return views, repRows.Err()
}

func (sel Selection) sql() (string, []any) {
	var where []string
	var args []any

	add := func(clause string, vals ...any) {
		where = append(where, clause)
		args = append(args, vals...)
	}

	if sel.StartYM != "" {
		add("fg.yyyymm >= ?", sel.StartYM)
	}
	if sel.EndYM != "" {
		add("fg.yyyymm <= ?", sel.EndYM)
	}
	if sel.CatCenter != "" {
		add("fg.cat_center = ?", sel.CatCenter)
	}
	if sel.Cataloger != "" {
		add("fg.cataloger = ?", sel.Cataloger)
	}
	if sel.Language != "" {
		add("b.language_code = ?", sel.Language)
	}
	if sel.Place != "" {
		add("b.place_code = ?", sel.Place)
	}
	if sel.Project != "" {
		// $k lives in child rows or in the comma-joined column depending on
		// the policy the data was loaded with
		add(`(EXISTS (SELECT 1 FROM repeatable_subfields r
		              WHERE r.field_id = fg.id AND r.subfield_code = 'k' AND r.subfield_value = ?)
		      OR (', ' || fg.project || ', ') LIKE ('%, ' || ? || ', %'))`,
			sel.Project, sel.Project)
	}

	query := `
		SELECT fg.id, fg.bib_id, b.mmsid, fg.cat_center, fg.cataloger, fg.yyyymm,
		       fg.difficulty, fg.maint_info, fg.national_info, fg.naco_info,
		       fg.saco_info, fg.project,
		       b.language_code, b.place_code, b.material_type, b.resource_type
		FROM field_groups fg
		JOIN bib_records b ON b.id = fg.bib_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, "\n\t\t  AND ")
	}
	query += "\n\t\tORDER BY fg.id"

	return query, args
}
