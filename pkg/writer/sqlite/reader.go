package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// ErrNoRuns is returned when a results database holds no runs.
var ErrNoRuns = errors.New("no runs in database")

// Run describes one stored run.
type Run struct {
	ID           string
	CreationDate string
	Description  string
	Replicates   []int
}

// Results is one run read back from a database.
type Results struct {
	Run          Run
	Differential []core.DifferentialResult
}

// ReadResults reads the differential results of runID, or of the most recent run when
// runID is empty, in rank order.
func ReadResults(path, runID string) (*Results, error) {
	// sql.Open would create an empty database
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	run, err := readRun(db, runID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT Accession, LogFC, T, PValue, ScaT, ScaPValue, AdjPValue,
			MinPeptideCount, Replicates, MatchSummary
		FROM DifferentialTable WHERE RunId = ? ORDER BY Rank
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	res := &Results{Run: run}
	for rows.Next() {
		var (
			r                             core.DifferentialResult
			logFC, t, p, scaT, scaP, adjP sql.NullFloat64
		)
		if err := rows.Scan(&r.Protein, &logFC, &t, &p, &scaT, &scaP, &adjP,
			&r.MinPeptideCount, &r.Replicates, &r.MatchSummary); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.LogFC = orNaN(logFC)
		r.T = orNaN(t)
		r.PValue = orNaN(p)
		r.SCAT = orNaN(scaT)
		r.SCAPValue = orNaN(scaP)
		r.AdjPValue = orNaN(adjP)
		res.Differential = append(res.Differential, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return res, nil
}

func readRun(db *sql.DB, runID string) (Run, error) {
	var row *sql.Row
	if runID == "" {
		row = db.QueryRow(`SELECT RunId, CreationDate, Description, Replicates FROM RunTable ORDER BY CreationDate DESC, rowid DESC LIMIT 1`)
	} else {
		row = db.QueryRow(`SELECT RunId, CreationDate, Description, Replicates FROM RunTable WHERE RunId = ?`, runID)
	}

	var (
		run  Run
		reps string
	)
	if err := row.Scan(&run.ID, &run.CreationDate, &run.Description, &reps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if runID != "" {
				return run, fmt.Errorf("run %s not found", runID)
			}
			return run, ErrNoRuns
		}
		return run, fmt.Errorf("failed to read run: %w", err)
	}

	for _, s := range strings.Split(reps, ",") {
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return run, fmt.Errorf("invalid replicate list %q: %w", reps, err)
		}
		run.Replicates = append(run.Replicates, n)
	}
	return run, nil
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
