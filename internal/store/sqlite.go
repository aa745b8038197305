package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteStore implements Store backed by SQLite + sqlite-vec. Vectors are
// stored as float32 blobs and compared with vec_distance_cosine, which
// allows a per-project threshold query without a fixed-dimension index.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path and
// initializes the schema.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; concurrent indexing workers queue here
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO projects (id) VALUES (?) ON CONFLICT(id) DO NOTHING", projectID)
	return err
}

func (s *SQLiteStore) InsertChunk(ctx context.Context, c Chunk) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, project_id, file_name, source_code, summary,
		                    chunk_index, total_chunks, start_line, end_line, chunk_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.FileName, c.SourceCode, c.Summary,
		c.ChunkIndex, c.TotalChunks, c.StartLine, c.EndLine, c.ChunkType,
	)
	if err != nil {
		return "", fmt.Errorf("insert chunk %s: %w", c.FileName, err)
	}
	return c.ID, nil
}

func (s *SQLiteStore) SetVector(ctx context.Context, chunkID string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("set vector for chunk %s: empty vector", chunkID)
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("serialize embedding for chunk %s: %w", chunkID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET embedding = excluded.embedding`,
		chunkID, blob,
	)
	if err != nil {
		return fmt.Errorf("insert embedding for chunk %s: %w", chunkID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteChunk(ctx context.Context, chunkID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", chunkID)
	return err
}

func (s *SQLiteStore) SimilaritySearch(ctx context.Context, projectID string, vec []float32, threshold float64, limit int) ([]SearchResult, error) {
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	// The CASE keeps vec_distance_cosine away from vectors of another
	// dimension, which would abort the whole query.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, source_code, summary, start_line, end_line, chunk_type, similarity
		FROM (
			SELECT c.id, c.file_name, c.source_code, c.summary, c.start_line, c.end_line,
			       c.chunk_type, c.chunk_index,
			       CASE WHEN vec_length(v.embedding) = ?
			            THEN 1.0 - vec_distance_cosine(v.embedding, ?)
			       END AS similarity
			FROM chunk_vectors v
			JOIN chunks c ON c.id = v.chunk_id
			WHERE c.project_id = ?
		)
		WHERE similarity IS NOT NULL AND similarity > ?
		ORDER BY similarity DESC, file_name, chunk_index
		LIMIT ?
	`, len(vec), blob, projectID, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.FileName, &r.SourceCode, &r.Summary,
			&r.StartLine, &r.EndLine, &r.ChunkType, &r.Similarity); err != nil {
			return nil, err
		}
		r.RawSimilarity = r.Similarity
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteProjectChunks(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE project_id = ?", projectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CountChunks(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE project_id = ?", projectID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string) ([]FileStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, COUNT(*) FROM chunks
		WHERE project_id = ?
		GROUP BY file_name
		ORDER BY file_name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileStat
	for rows.Next() {
		var f FileStat
		if err := rows.Scan(&f.FileName, &f.Chunks); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) GetMeta(ctx context.Context, projectID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM project_meta WHERE project_id = ? AND key = ?", projectID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, projectID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_meta (project_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value`,
		projectID, key, value,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
