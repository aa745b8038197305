package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore implements Store on PostgreSQL with the pgvector
// extension. The embedding lives on the chunk row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database and initializes the schema.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) EnsureProject(ctx context.Context, projectID string) error {
	_, err := p.pool.Exec(ctx, "INSERT INTO projects (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", projectID)
	return err
}

func (p *PostgresStore) InsertChunk(ctx context.Context, c Chunk) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
	INSERT INTO chunks (id, project_id, file_name, source_code, summary,
	                    chunk_index, total_chunks, start_line, end_line, chunk_type)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.pool.Exec(ctx, query,
		c.ID, c.ProjectID, c.FileName, c.SourceCode, c.Summary,
		c.ChunkIndex, c.TotalChunks, c.StartLine, c.EndLine, c.ChunkType,
	)
	if err != nil {
		return "", fmt.Errorf("insert chunk %s: %w", c.FileName, err)
	}
	return c.ID, nil
}

func (p *PostgresStore) SetVector(ctx context.Context, chunkID string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("set vector for chunk %s: empty vector", chunkID)
	}
	tag, err := p.pool.Exec(ctx,
		"UPDATE chunks SET summary_embedding = $1::vector WHERE id = $2",
		pgvector.NewVector(vec), chunkID,
	)
	if err != nil {
		return fmt.Errorf("set embedding for chunk %s: %w", chunkID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) DeleteChunk(ctx context.Context, chunkID string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE id = $1", chunkID)
	return err
}

func (p *PostgresStore) SimilaritySearch(ctx context.Context, projectID string, vec []float32, threshold float64, limit int) ([]SearchResult, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	query := `
		SELECT id, file_name, source_code, summary, start_line, end_line, chunk_type, similarity
		FROM (
			SELECT id, file_name, source_code, summary, start_line, end_line, chunk_type, chunk_index,
			       CASE WHEN vector_dims(summary_embedding) = $2
			            THEN 1 - (summary_embedding <=> $1::vector)
			       END AS similarity
			FROM chunks
			WHERE project_id = $3 AND summary_embedding IS NOT NULL
		) AS scored
		WHERE similarity IS NOT NULL AND similarity > $4
		ORDER BY similarity DESC, file_name, chunk_index
		LIMIT $5
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vec), len(vec), projectID, threshold, limit)
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

func (p *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) DeleteProjectChunks(ctx context.Context, projectID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE project_id = $1", projectID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) CountChunks(ctx context.Context, projectID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks WHERE project_id = $1", projectID).Scan(&n)
	return n, err
}

func (p *PostgresStore) ListFiles(ctx context.Context, projectID string) ([]FileStat, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT file_name, COUNT(*) FROM chunks
		WHERE project_id = $1
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

func (p *PostgresStore) GetMeta(ctx context.Context, projectID, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		"SELECT value FROM project_meta WHERE project_id = $1 AND key = $2", projectID, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (p *PostgresStore) SetMeta(ctx context.Context, projectID, key, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO project_meta (project_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (project_id, key) DO UPDATE SET value = EXCLUDED.value`,
		projectID, key, value,
	)
	return err
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
