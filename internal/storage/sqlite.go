package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Reset rolls back every migration and applies them again, leaving an
// empty index with the current schema
func (s *SQLiteStorage) Reset(ctx context.Context) error {
	for {
		v, err := schemaVersion(ctx, s.db)
		if err != nil {
			return err
		}
		if v.Equal(semver.MustParse("0.0.0")) {
			break
		}
		if err := RollbackMigration(ctx, s.db); err != nil {
			return err
		}
	}
	return ApplyMigrations(ctx, s.db)
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Project operations

func (s *SQLiteStorage) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, project.RootPath, project.IndexVersion, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: project %s", ErrAlreadyExists, project.RootPath)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

const projectColumns = `id, root_path, total_files, total_symbols, index_version,
	last_indexed_at, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.RootPath, &project.TotalFiles, &project.TotalSymbols,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, rootPath string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE root_path = ?`
	return scanProject(q.QueryRowContext(ctx, query, rootPath))
}

func (s *SQLiteStorage) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), rootPath)
}

func (s *SQLiteStorage) getProjectByID(ctx context.Context, q querier, projectID int64) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`
	return scanProject(q.QueryRowContext(ctx, query, projectID))
}

func (s *SQLiteStorage) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET total_files = ?, total_symbols = ?, index_version = ?, last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		project.TotalFiles, project.TotalSymbols, project.IndexVersion,
		project.LastIndexedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

// File operations

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO index_files (project_id, file_path, import_file, language, content_hash, args,
			mod_time, size_bytes, parse_error, anomalies, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			import_file = excluded.import_file,
			language = excluded.language,
			content_hash = excluded.content_hash,
			args = excluded.args,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			parse_error = excluded.parse_error,
			anomalies = excluded.anomalies,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	args, err := json.Marshal(file.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}

	now := time.Now()
	// SQLite integers are signed; the hash is stored bit for bit
	err = q.QueryRowContext(ctx, query,
		file.ProjectID, file.FilePath, file.ImportFile, file.Language, int64(file.ContentHash), string(args),
		file.ModTime, file.SizeBytes, file.ParseError, file.Anomalies, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

const fileColumns = `id, project_id, file_path, import_file, language, content_hash, args,
	mod_time, size_bytes, parse_error, anomalies, last_indexed_at, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	var file File
	var hash int64
	var args, language sql.NullString
	var parseError sql.NullString
	var modTime, lastIndexedAt sql.NullTime
	var size, anomalies sql.NullInt64
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.FilePath, &file.ImportFile, &language,
		&hash, &args, &modTime, &size, &parseError, &anomalies,
		&lastIndexedAt, &file.CreatedAt, &file.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	file.ContentHash = uint64(hash)
	file.Language = language.String
	file.ModTime = modTime.Time
	file.SizeBytes = size.Int64
	file.Anomalies = int(anomalies.Int64)
	file.LastIndexedAt = lastIndexedAt.Time
	if parseError.Valid {
		file.ParseError = &parseError.String
	}
	if args.Valid && args.String != "" {
		if err := json.Unmarshal([]byte(args.String), &file.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args of %s: %w", file.FilePath, err)
		}
	}
	return &file, nil
}

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, projectID int64, filePath string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM index_files WHERE project_id = ? AND file_path = ?`
	return scanFile(q.QueryRowContext(ctx, query, projectID, filePath))
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID int64, filePath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), projectID, filePath)
}

func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM index_files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, query string, args ...any) ([]*File, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM index_files WHERE project_id = ? ORDER BY file_path`
	return s.listFilesWithQuerier(ctx, s.querier(), query, projectID)
}

// Symbol operations

// replaceSymbolsWithQuerier drops the previous occurrences of the file
// before inserting the new ones
func (s *SQLiteStorage) replaceSymbolsWithQuerier(ctx context.Context, q querier, fileID int64, symbols []*Symbol) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to clear symbols: %w", err)
	}

	query := `
		INSERT INTO symbols (
			file_id, usr, kind, sym_kind, qualified_name, short_name, role, role_bits,
			start_line, start_col, end_line, end_col, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	now := time.Now()
	for _, sym := range symbols {
		sym.FileID = fileID
		err := q.QueryRowContext(ctx, query,
			fileID, sym.Usr, sym.Kind, sym.SymKind, sym.QualifiedName, sym.ShortName,
			sym.Role, sym.RoleBits, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol, now,
		).Scan(&sym.ID)
		if err != nil {
			return fmt.Errorf("failed to insert symbol %s: %w", sym.Usr, err)
		}
		sym.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) ReplaceSymbols(ctx context.Context, fileID int64, symbols []*Symbol) error {
	return s.replaceSymbolsWithQuerier(ctx, s.querier(), fileID, symbols)
}

const symbolColumns = `s.id, s.file_id, f.file_path, s.usr, s.kind, s.sym_kind, s.qualified_name,
	s.short_name, s.role, s.role_bits, s.start_line, s.start_col, s.end_line, s.end_col, s.created_at`

func (s *SQLiteStorage) querySymbols(ctx context.Context, q querier, where string, args ...any) ([]*Symbol, error) {
	query := `SELECT ` + symbolColumns + `
		FROM symbols s JOIN index_files f ON s.file_id = f.id
		WHERE ` + where
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	symbols := make([]*Symbol, 0)
	for rows.Next() {
		var sym Symbol
		var qualified, short sql.NullString
		var symKind, roleBits sql.NullInt64
		err := rows.Scan(
			&sym.ID, &sym.FileID, &sym.FilePath, &sym.Usr, &sym.Kind, &symKind, &qualified,
			&short, &sym.Role, &roleBits, &sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
			&sym.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sym.SymKind = int(symKind.Int64)
		sym.RoleBits = int(roleBits.Int64)
		sym.QualifiedName = qualified.String
		sym.ShortName = short.String
		symbols = append(symbols, &sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStorage) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error) {
	return s.querySymbols(ctx, s.querier(), `s.file_id = ? ORDER BY s.start_line, s.start_col`, fileID)
}

func (s *SQLiteStorage) FindSymbolsByUsr(ctx context.Context, projectID int64, usr string) ([]*Symbol, error) {
	return s.querySymbols(ctx, s.querier(),
		`f.project_id = ? AND s.usr = ? ORDER BY f.file_path, s.start_line, s.start_col`, projectID, usr)
}

func (s *SQLiteStorage) symbolAtWithQuerier(ctx context.Context, q querier, projectID int64, filePath string, line, col int) (*Symbol, error) {
	symbols, err := s.querySymbols(ctx, q, `
		f.project_id = ? AND f.file_path = ?
		AND (s.start_line < ? OR (s.start_line = ? AND s.start_col <= ?))
		AND (s.end_line > ? OR (s.end_line = ? AND s.end_col > ?))
		ORDER BY (s.end_line - s.start_line), (s.end_col - s.start_col)
		LIMIT 1`,
		projectID, filePath, line, line, col, line, line, col)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, ErrNotFound
	}
	return symbols[0], nil
}

// SymbolAt returns the narrowest occurrence covering line:col in filePath
func (s *SQLiteStorage) SymbolAt(ctx context.Context, projectID int64, filePath string, line, col int) (*Symbol, error) {
	return s.symbolAtWithQuerier(ctx, s.querier(), projectID, filePath, line, col)
}

func (s *SQLiteStorage) searchSymbolsWithQuerier(ctx context.Context, q querier, projectID int64, query string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"
	return s.querySymbols(ctx, q, `
		f.project_id = ? AND s.role != ?
		AND (s.qualified_name LIKE ? ESCAPE '\' OR s.short_name LIKE ? ESCAPE '\')
		ORDER BY length(s.qualified_name), s.qualified_name
		LIMIT ?`,
		projectID, RoleReference, pattern, pattern, limit)
}

// SearchSymbols matches definitions and declarations by name substring
func (s *SQLiteStorage) SearchSymbols(ctx context.Context, projectID int64, query string, limit int) ([]*Symbol, error) {
	return s.searchSymbolsWithQuerier(ctx, s.querier(), projectID, query, limit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Include operations

func (s *SQLiteStorage) replaceIncludesWithQuerier(ctx context.Context, q querier, fileID int64, includes []*Include) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM includes WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to clear includes: %w", err)
	}
	for _, inc := range includes {
		inc.FileID = fileID
		result, err := q.ExecContext(ctx,
			`INSERT INTO includes (file_id, line, resolved_path) VALUES (?, ?, ?)`,
			fileID, inc.Line, inc.ResolvedPath)
		if err != nil {
			return fmt.Errorf("failed to insert include: %w", err)
		}
		if inc.ID, err = result.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) ReplaceIncludes(ctx context.Context, fileID int64, includes []*Include) error {
	return s.replaceIncludesWithQuerier(ctx, s.querier(), fileID, includes)
}

var includersQuery = `SELECT DISTINCT ` + prefixed("f.", fileColumns) + `
	FROM index_files f JOIN includes i ON i.file_id = f.id
	WHERE f.project_id = ? AND i.resolved_path = ?
	ORDER BY f.file_path`

// ListIncluders returns the files with an #include resolving to includedPath
func (s *SQLiteStorage) ListIncluders(ctx context.Context, projectID int64, includedPath string) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), includersQuery, projectID, includedPath)
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, projectID int64) (*ProjectStatus, error) {
	project, err := s.getProjectByID(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&status.FilesCount, `SELECT COUNT(*) FROM index_files WHERE project_id = ?`},
		{&status.FailedFiles, `SELECT COUNT(*) FROM index_files WHERE project_id = ? AND parse_error IS NOT NULL`},
		{&status.SymbolsCount, `SELECT COUNT(DISTINCT s.usr) FROM symbols s JOIN index_files f ON s.file_id = f.id WHERE f.project_id = ?`},
		{&status.DefsCount, `SELECT COUNT(*) FROM symbols s JOIN index_files f ON s.file_id = f.id WHERE f.project_id = ? AND s.role = '` + RoleDefinition + `'`},
		{&status.IncludesCount, `SELECT COUNT(*) FROM includes i JOIN index_files f ON i.file_id = f.id WHERE f.project_id = ?`},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query, projectID).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		BuildMode:          BuildMode,
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), projectID)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Transaction implementations delegate to the storage helpers with the
// transaction as querier

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.storage.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), rootPath)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.storage.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID int64, filePath string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), projectID, filePath)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM index_files WHERE project_id = ? ORDER BY file_path`
	return t.storage.listFilesWithQuerier(ctx, t.querier(), query, projectID)
}

func (t *sqliteTx) ReplaceSymbols(ctx context.Context, fileID int64, symbols []*Symbol) error {
	return t.storage.replaceSymbolsWithQuerier(ctx, t.querier(), fileID, symbols)
}

func (t *sqliteTx) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error) {
	return t.storage.querySymbols(ctx, t.querier(), `s.file_id = ? ORDER BY s.start_line, s.start_col`, fileID)
}

func (t *sqliteTx) FindSymbolsByUsr(ctx context.Context, projectID int64, usr string) ([]*Symbol, error) {
	return t.storage.querySymbols(ctx, t.querier(),
		`f.project_id = ? AND s.usr = ? ORDER BY f.file_path, s.start_line, s.start_col`, projectID, usr)
}

func (t *sqliteTx) SymbolAt(ctx context.Context, projectID int64, filePath string, line, col int) (*Symbol, error) {
	return t.storage.symbolAtWithQuerier(ctx, t.querier(), projectID, filePath, line, col)
}

func (t *sqliteTx) SearchSymbols(ctx context.Context, projectID int64, query string, limit int) ([]*Symbol, error) {
	return t.storage.searchSymbolsWithQuerier(ctx, t.querier(), projectID, query, limit)
}

func (t *sqliteTx) ReplaceIncludes(ctx context.Context, fileID int64, includes []*Include) error {
	return t.storage.replaceIncludesWithQuerier(ctx, t.querier(), fileID, includes)
}

func (t *sqliteTx) ListIncluders(ctx context.Context, projectID int64, includedPath string) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), includersQuery, projectID, includedPath)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
