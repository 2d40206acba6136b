package pdtsv

import (
	"errors"
	"fmt"
	"io"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

// PeptideReader provides streaming access to a peptide group table
type PeptideReader struct {
	t       *table
	schema  PeptideSchema
	current *core.PeptideFeature
	err     error
}

// NewPeptideReader validates the table header against the schema and returns a reader.
// A missing column is reported as a *core.ConfigError naming the replicate and column.
func NewPeptideReader(r io.Reader, schema PeptideSchema, replicate int) (*PeptideReader, error) {
	t, err := newTable(r, replicate, schema.required())
	if err != nil {
		return nil, err
	}
	return &PeptideReader{t: t, schema: schema}, nil
}

// Next advances to the next feature. Returns false when no more features or error.
func (r *PeptideReader) Next() bool {
	r.current = nil

	rec, err := r.t.next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = fmt.Errorf("replicate %d: %w", r.t.replicate, err)
		}
		return false
	}

	s := r.schema
	id, err := r.t.featureID(rec, s.Sequence, s.Modifications, s.MasterProteins, s.ProteinGroups, s.Contaminant)
	if err != nil {
		r.err = fmt.Errorf("replicate %d: %w", r.t.replicate, err)
		return false
	}

	r.current = &core.PeptideFeature{
		FeatureID:      id,
		LightIntensity: parseAbundance(r.t.field(rec, s.LightAbundance)),
		HeavyIntensity: parseAbundance(r.t.field(rec, s.HeavyAbundance)),
	}
	return true
}

// Feature returns the current feature
func (r *PeptideReader) Feature() *core.PeptideFeature {
	return r.current
}

// Err returns any error encountered during reading
func (r *PeptideReader) Err() error {
	return r.err
}

// PSMReader provides streaming access to a PSM table
type PSMReader struct {
	t       *table
	schema  PSMSchema
	current *core.PSMFeature
	err     error
}

// NewPSMReader validates the table header against the schema and returns a reader.
func NewPSMReader(r io.Reader, schema PSMSchema, replicate int) (*PSMReader, error) {
	t, err := newTable(r, replicate, schema.required())
	if err != nil {
		return nil, err
	}
	return &PSMReader{t: t, schema: schema}, nil
}

// Next advances to the next PSM. Returns false when no more PSMs or error.
func (r *PSMReader) Next() bool {
	r.current = nil

	rec, err := r.t.next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = fmt.Errorf("replicate %d: %w", r.t.replicate, err)
		}
		return false
	}

	s := r.schema
	id, err := r.t.featureID(rec, s.Sequence, s.Modifications, s.MasterProteins, s.ProteinGroups, s.Contaminant)
	if err != nil {
		r.err = fmt.Errorf("replicate %d: %w", r.t.replicate, err)
		return false
	}

	r.current = &core.PSMFeature{
		FeatureID:          id,
		QuanChannel:        r.t.field(rec, s.QuanChannel),
		PrecursorAbundance: parseAbundance(r.t.field(rec, s.PrecursorAbundance)),
	}
	return true
}

// PSM returns the current PSM
func (r *PSMReader) PSM() *core.PSMFeature {
	return r.current
}

// Err returns any error encountered during reading
func (r *PSMReader) Err() error {
	return r.err
}

// ReadPeptides reads a whole peptide group table.
func ReadPeptides(r io.Reader, schema PeptideSchema, replicate int) ([]core.PeptideFeature, error) {
	pr, err := NewPeptideReader(r, schema, replicate)
	if err != nil {
		return nil, err
	}

	var features []core.PeptideFeature
	for pr.Next() {
		features = append(features, *pr.Feature())
	}
	if err := pr.Err(); err != nil {
		return nil, err
	}
	return features, nil
}

// ReadPSMs reads a whole PSM table.
func ReadPSMs(r io.Reader, schema PSMSchema, replicate int) ([]core.PSMFeature, error) {
	pr, err := NewPSMReader(r, schema, replicate)
	if err != nil {
		return nil, err
	}

	var psms []core.PSMFeature
	for pr.Next() {
		psms = append(psms, *pr.PSM())
	}
	if err := pr.Err(); err != nil {
		return nil, err
	}
	return psms, nil
}
