// Package sqlite provides a SQLite results database for silacde runs
package sqlite

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ChrisMcGann/silacde/pkg/core"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Date format for RunTable (ISO 8601 with seconds, sorts lexically)
const runDateFormat = "2006-01-02 15:04:05"

// Writer appends one run to a results database. Rows are written in a single
// transaction that only Finalize commits; Close without Finalize discards the run.
type Writer struct {
	db          *sql.DB
	tx          *sql.Tx
	outputPath  string
	runID       string
	description string
	replicates  []int
	proteinStmt *sql.Stmt
	resultStmt  *sql.Stmt
	rank        int
	finalized   bool
}

// NewWriter opens or creates the database at outputPath and starts a new run
func NewWriter(outputPath, description string, replicates []int) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:          db,
		outputPath:  outputPath,
		runID:       uuid.NewString(),
		description: description,
		replicates:  append([]int(nil), replicates...),
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	w.tx, err = db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := w.prepareStatements(); err != nil {
		w.tx.Rollback()
		db.Close()
		return nil, err
	}

	return w, nil
}

// RunID returns the identifier of the run being written
func (w *Writer) RunID() string {
	return w.runID
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId TEXT PRIMARY KEY,
		CreationDate TEXT,
		Description TEXT,
		Replicates TEXT
	);

	CREATE TABLE IF NOT EXISTS ProteinRatioTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Accession TEXT,
		Replicate INTEGER,
		Ratio DOUBLE,
		PeptideCount INTEGER,
		AnyTreatmentNotMatched BOOL,
		AnyControlNotMatched BOOL,
		AnyProvenanceUnknown BOOL
	);

	CREATE TABLE IF NOT EXISTS DifferentialTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Rank INTEGER,
		Accession TEXT,
		LogFC DOUBLE,
		T DOUBLE,
		PValue DOUBLE,
		ScaT DOUBLE,
		ScaPValue DOUBLE,
		AdjPValue DOUBLE,
		MinPeptideCount INTEGER,
		Replicates INTEGER,
		MatchSummary TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.proteinStmt, err = w.tx.Prepare(`
		INSERT INTO ProteinRatioTable (
			RunId, Accession, Replicate, Ratio, PeptideCount,
			AnyTreatmentNotMatched, AnyControlNotMatched, AnyProvenanceUnknown
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare protein ratio statement: %w", err)
	}

	w.resultStmt, err = w.tx.Prepare(`
		INSERT INTO DifferentialTable (
			RunId, Rank, Accession, LogFC, T, PValue, ScaT, ScaPValue,
			AdjPValue, MinPeptideCount, Replicates, MatchSummary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare differential statement: %w", err)
	}

	return nil
}

// WriteProteinRatio writes one protein/replicate cell. A missing ratio is stored as NULL.
func (w *Writer) WriteProteinRatio(rec core.ProteinRatioRecord) error {
	_, err := w.proteinStmt.Exec(
		w.runID,
		rec.Protein,
		rec.Replicate,
		nullable(rec.Ratio),
		rec.PeptideCount,
		rec.AnyTreatmentNotMatched,
		rec.AnyControlNotMatched,
		rec.AnyProvenanceUnknown,
	)
	if err != nil {
		return fmt.Errorf("failed to insert protein ratio: %w", err)
	}
	return nil
}

// WriteResult writes the next differential result. Results must arrive in rank order.
func (w *Writer) WriteResult(res core.DifferentialResult) error {
	w.rank++
	_, err := w.resultStmt.Exec(
		w.runID,
		w.rank,
		res.Protein,
		nullable(res.LogFC),
		nullable(res.T),
		nullable(res.PValue),
		nullable(res.SCAT),
		nullable(res.SCAPValue),
		nullable(res.AdjPValue),
		res.MinPeptideCount,
		res.Replicates,
		res.MatchSummary,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// nullable maps NaN to NULL; SQLite has no NaN
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func joinReplicates(reps []int) string {
	parts := make([]string, len(reps))
	for i, r := range reps {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ",")
}

// Finalize writes the run record, commits and closes the database
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	_, err := w.tx.Exec(`
		INSERT INTO RunTable (RunId, CreationDate, Description, Replicates)
		VALUES (?, ?, ?, ?)
	`, w.runID, time.Now().UTC().Format(runDateFormat), w.description, joinReplicates(w.replicates))
	if err != nil {
		w.tx.Rollback()
		w.db.Close()
		return fmt.Errorf("failed to insert run: %w", err)
	}

	// Close prepared statements
	if w.proteinStmt != nil {
		w.proteinStmt.Close()
	}
	if w.resultStmt != nil {
		w.resultStmt.Close()
	}

	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit run: %w", err)
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close discards the run unless Finalize has committed it, and closes the database
func (w *Writer) Close() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	if w.proteinStmt != nil {
		w.proteinStmt.Close()
	}
	if w.resultStmt != nil {
		w.resultStmt.Close()
	}
	if err := w.tx.Rollback(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to roll back run: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
