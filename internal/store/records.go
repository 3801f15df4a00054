package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/catstats/internal/catalog"
)

// CommitStats counts what one CommitPeriod call wrote
type CommitStats struct {
	BibsCreated        int
	FieldsCreated      int
	RepeatablesCreated int
	SkippedDuplicates  int
}

// Add accumulates other into s
func (s *CommitStats) Add(other CommitStats) {
	s.BibsCreated += other.BibsCreated
	s.FieldsCreated += other.FieldsCreated
	s.RepeatablesCreated += other.RepeatablesCreated
	s.SkippedDuplicates += other.SkippedDuplicates
}

// CommitPeriod writes the records of one period in a single transaction.
// A record whose MMS Id is already stored is skipped entirely and counted
// as a duplicate. Any failure rolls back the whole period.
func (s *Store) CommitPeriod(ctx context.Context, records []catalog.Record, policy catalog.AggregationPolicy) (CommitStats, error) {
	var stats CommitStats

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		for i := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec := &records[i]
			created, err := s.CreateBibIfAbsent(tx, &rec.Bib)
			if err != nil {
				return err
			}
			if !created {
				stats.SkippedDuplicates++
				continue
			}
			stats.BibsCreated++

			for j := range rec.Fields {
				fg := &rec.Fields[j]
				fg.BibID = rec.Bib.ID
				fg.MMSID = rec.Bib.MMSID

				if err := s.InsertFieldGroup(tx, fg); err != nil {
					return err
				}
				stats.FieldsCreated++

				if policy != catalog.MultiValue {
					continue
				}
				for _, rv := range fg.Repeatables {
					if err := s.InsertRepeatable(tx, fg.ID, rv); err != nil {
						return err
					}
					stats.RepeatablesCreated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return CommitStats{}, err
	}

	return stats, nil
}

// CreateBibIfAbsent inserts a bib record unless its MMS Id already exists.
// On creation bib.ID is set and true is returned.
func (s *Store) CreateBibIfAbsent(tx *sql.Tx, bib *catalog.BibRecord) (bool, error) {
	result, err := tx.Exec(`
		INSERT INTO bib_records (mmsid, language_code, place_code, material_type, resource_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mmsid) DO NOTHING
	`, bib.MMSID, bib.LanguageCode, bib.PlaceCode, bib.MaterialType, bib.ResourceType)
	if err != nil {
		return false, fmt.Errorf("failed to insert bib record %s: %w", bib.MMSID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get bib record ID: %w", err)
	}
	bib.ID = id

	return true, nil
}

// InsertFieldGroup inserts a field group and sets its ID
func (s *Store) InsertFieldGroup(tx *sql.Tx, fg *catalog.FieldGroup) error {
	result, err := tx.Exec(`
		INSERT INTO field_groups
		(bib_id, cat_center, cataloger, yyyymm, difficulty, maint_info,
		 national_info, naco_info, saco_info, project)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fg.BibID, fg.CatCenter, fg.Cataloger, fg.YearMonth, fg.Difficulty, fg.MaintInfo,
		fg.NationalInfo, fg.NacoInfo, fg.SacoInfo, fg.Project)
	if err != nil {
		return fmt.Errorf("failed to insert field group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get field group ID: %w", err)
	}
	fg.ID = id

	return nil
}

// InsertRepeatable inserts one repeatable subfield occurrence
func (s *Store) InsertRepeatable(tx *sql.Tx, fieldID int64, rv catalog.RepeatableValue) error {
	_, err := tx.Exec(`
		INSERT INTO repeatable_subfields (field_id, subfield_code, subfield_value)
		VALUES (?, ?, ?)
	`, fieldID, rv.Code, rv.Value)
	if err != nil {
		return fmt.Errorf("failed to insert repeatable subfield $%s: %w", rv.Code, err)
	}
	return nil
}

// Wipe removes every normalized record. Run history is kept.
func (s *Store) Wipe(ctx context.Context) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"repeatable_subfields", "field_groups", "bib_records"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// BibExists reports whether a bib record with the MMS Id is stored
func (s *Store) BibExists(mmsid string) (bool, error) {
	var exists int
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM bib_records WHERE mmsid = ?)`, mmsid).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// CountBibs returns the number of stored bib records
func (s *Store) CountBibs() (int, error) {
	return s.count("bib_records")
}

// CountFieldGroups returns the number of stored field groups
func (s *Store) CountFieldGroups() (int, error) {
	return s.count("field_groups")
}

// CountRepeatables returns the number of stored repeatable subfield rows
func (s *Store) CountRepeatables() (int, error) {
	return s.count("repeatable_subfields")
}

func (s *Store) count(table string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	return count, err
}

// FieldGroupsFor returns the field groups of one bib record, with their
// repeatable occurrences, in insertion order
func (s *Store) FieldGroupsFor(mmsid string) ([]catalog.FieldGroup, error) {
	rows, err := s.db.Query(`
		SELECT fg.id, fg.bib_id, b.mmsid, fg.cat_center, fg.cataloger, fg.yyyymm,
		       fg.difficulty, fg.maint_info, fg.national_info, fg.naco_info,
		       fg.saco_info, fg.project
		FROM field_groups fg
		JOIN bib_records b ON b.id = fg.bib_id
		WHERE b.mmsid = ?
		ORDER BY fg.id
	`, mmsid)
	if err != nil {
		return nil, fmt.Errorf("failed to query field groups: %w", err)
	}
	defer rows.Close()

	var groups []catalog.FieldGroup
	for rows.Next() {
		var fg catalog.FieldGroup
		if err := rows.Scan(&fg.ID, &fg.BibID, &fg.MMSID, &fg.CatCenter, &fg.Cataloger,
			&fg.YearMonth, &fg.Difficulty, &fg.MaintInfo, &fg.NationalInfo, &fg.NacoInfo,
			&fg.SacoInfo, &fg.Project); err != nil {
			return nil, err
		}
		groups = append(groups, fg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		reps, err := s.repeatablesFor(groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Repeatables = reps
	}

	return groups, nil
}

func (s *Store) repeatablesFor(fieldID int64) ([]catalog.RepeatableValue, error) {
	rows, err := s.db.Query(`
		SELECT subfield_code, subfield_value
		FROM repeatable_subfields
		WHERE field_id = ?
		ORDER BY id
	`, fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeatable subfields: %w", err)
	}
	defer rows.Close()

	var out []catalog.RepeatableValue
	for rows.Next() {
		var rv catalog.RepeatableValue
		if err := rows.Scan(&rv.Code, &rv.Value); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
