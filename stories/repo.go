package stories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const storyColumns = `id, transcript, title, translated_text, cultural_notes, summary,
	audio_url, audio_checksum, language_code, language_name, region, speaker_name, created_at`

type (
	// SQLRepo stores stories in a SQLite or Postgres table. Both drivers accept $N placeholders.
	SQLRepo struct {
		db *sql.DB
	}

	rowScanner interface {
		Scan(dest ...any) error
	}
)

func NewSQLRepo(db *sql.DB) SQLRepo {
	return SQLRepo{db}
}

func (r SQLRepo) CreateStory(ctx context.Context, s Story) (string, error) {
	notes, err := json.Marshal(nonNilNotes(s.CulturalNotes))
	if err != nil {
		return "", fmt.Errorf("encoding cultural notes: %w", err)
	}

	var id int64
	err = r.db.
		QueryRowContext(
			ctx,
			`insert into stories (
				transcript, title, translated_text, cultural_notes, summary,
				audio_url, audio_checksum, language_code, language_name, region, speaker_name, created_at
			) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) returning id`,
			s.Transcript,
			s.Title,
			s.TranslatedText,
			string(notes),
			s.Summary,
			s.AudioURL,
			s.AudioChecksum,
			s.LanguageCode,
			s.LanguageName,
			s.Region,
			s.SpeakerName,
			s.CreatedAt.UnixMilli(),
		).
		Scan(&id)
	if err != nil {
		return "", fmt.Errorf("persisting story into sql: %w", err)
	}

	return strconv.FormatInt(id, 10), nil
}

func (r SQLRepo) GetStoryByID(ctx context.Context, id string) (Story, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Story{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, "select "+storyColumns+" from stories where id = $1", n)
	s, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Story{}, ErrNotFound
	}
	if err != nil {
		return Story{}, fmt.Errorf("get story by id: %w", err)
	}

	return s, nil
}

func (r SQLRepo) ListStories(ctx context.Context, f ListFilter) ([]Story, error) {
	var q strings.Builder
	q.WriteString("select " + storyColumns + " from stories")

	var args []any
	switch {
	case f.Region != "":
		q.WriteString(" where region = $1")
		args = append(args, f.Region)
	case f.Search != "":
		q.WriteString(" where (language_name = $1 or language_code = $1)")
		args = append(args, f.Search)
	}
	q.WriteString(" order by created_at desc, id desc")

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	res := []Story{}
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("list stories: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stories: rows: %w", err)
	}

	return res, nil
}

func scanStory(row rowScanner) (Story, error) {
	var (
		s         Story
		id        int64
		notes     string
		createdAt int64
	)
	err := row.Scan(
		&id,
		&s.Transcript,
		&s.Title,
		&s.TranslatedText,
		&notes,
		&s.Summary,
		&s.AudioURL,
		&s.AudioChecksum,
		&s.LanguageCode,
		&s.LanguageName,
		&s.Region,
		&s.SpeakerName,
		&createdAt,
	)
	if err != nil {
		return Story{}, err
	}

	s.ID = strconv.FormatInt(id, 10)
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(notes), &s.CulturalNotes); err != nil {
		return Story{}, fmt.Errorf("decoding cultural notes of story %d: %w", id, err)
	}
	s.CulturalNotes = nonNilNotes(s.CulturalNotes)

	return s, nil
}

func nonNilNotes(notes []string) []string {
	if notes == nil {
		return []string{}
	}
	return notes
}
