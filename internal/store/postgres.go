package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/catalog-mirror/internal/catalog"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store over the subjects and characters tables.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (p *postgresStore) UpsertSubjectMetadata(ctx context.Context, subject *catalog.Subject) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO subjects (id, type, name, date, data, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, now())
		ON CONFLICT (id) DO UPDATE
		SET type = EXCLUDED.type,
		    name = EXCLUDED.name,
		    date = EXCLUDED.date,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at`,
		subject.ID, int(subject.Type), subject.Name, subject.Date, jsonOrNull(subject.Raw),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subject %d: %w", subject.ID, err)
	}
	return nil
}

func (p *postgresStore) UpsertRelatedList(ctx context.Context, subjectID int64, related []catalog.RelatedCharacter) error {
	if related == nil {
		related = []catalog.RelatedCharacter{}
	}
	encoded, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("failed to encode characters of subject %d: %w", subjectID, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO subjects (id, characters, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET characters = EXCLUDED.characters,
		    updated_at = EXCLUDED.updated_at`,
		subjectID, encoded,
	)
	if err != nil {
		return fmt.Errorf("failed to update characters of subject %d: %w", subjectID, err)
	}
	return nil
}

func (p *postgresStore) FindSubject(ctx context.Context, id int64) (*Subject, error) {
	var (
		s          Subject
		subjType   int
		name, date *string
		data       []byte
		characters []byte
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, type, name, date, data, characters, updated_at
		FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &subjType, &name, &date, &data, &characters, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find subject %d: %w", id, err)
	}

	s.Type = catalog.SubjectType(subjType)
	s.Name = deref(name)
	s.Date = deref(date)
	s.Data = data
	if len(characters) > 0 {
		if err := json.Unmarshal(characters, &s.Characters); err != nil {
			return nil, fmt.Errorf("failed to decode characters of subject %d: %w", id, err)
		}
	}
	return &s, nil
}

func (p *postgresStore) UpsertCharacter(ctx context.Context, character *catalog.Character) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO characters (id, name, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at`,
		character.ID, character.Name, jsonOrNull(character.Raw),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert character %d: %w", character.ID, err)
	}
	return nil
}

func (p *postgresStore) FindCharacter(ctx context.Context, id int64) (*Character, error) {
	var c Character
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, data, updated_at FROM characters WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Data, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find character %d: %w", id, err)
	}
	return &c, nil
}

func (p *postgresStore) CountSubjects(ctx context.Context, filter catalog.Filter) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM subjects
		WHERE ($1 = 0 OR type = $1)
		  AND ($2 = 0 OR substring(date FROM 1 FOR 4) = lpad($2::text, 4, '0'))
		  AND ($3 = 0 OR substring(date FROM 6 FOR 2) = lpad($3::text, 2, '0'))`,
		int(filter.Type), filter.Year, filter.Month,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subjects: %w", err)
	}
	return count, nil
}

func (p *postgresStore) FindSubjectIDsMissingDate(ctx context.Context, filter catalog.Filter) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM subjects
		WHERE ($1 = 0 OR type = $1) AND (date IS NULL OR btrim(date) = '')
		ORDER BY id`,
		int(filter.Type),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects without date: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to read subjects without date: %w", err)
	}
	return ids, nil
}

func (p *postgresStore) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats Stats
		last  *time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM subjects),
			(SELECT count(*) FROM characters),
			GREATEST((SELECT max(updated_at) FROM subjects), (SELECT max(updated_at) FROM characters))`,
	).Scan(&stats.Subjects, &stats.Characters, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	stats.LastUpdated = last
	return &stats, nil
}

func jsonOrNull(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
