package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// LabelDatabase stores the names of isotope label modifications
type LabelDatabase struct {
	labels map[string]struct{}
}

// NewLabelDatabase creates an empty label database
func NewLabelDatabase() *LabelDatabase {
	return &LabelDatabase{
		labels: make(map[string]struct{}),
	}
}

// Add registers a label modification name
func (db *LabelDatabase) Add(name string) {
	db.labels[strings.TrimSpace(name)] = struct{}{}
}

// IsLabel reports whether the modification name is an isotope label
func (db *LabelDatabase) IsLabel(name string) bool {
	_, ok := db.labels[name]
	return ok
}

// Len returns the number of registered labels
func (db *LabelDatabase) Len() int {
	return len(db.labels)
}

// DefaultLabelDatabase returns a LabelDatabase pre-loaded with common SILAC labels
func DefaultLabelDatabase() *LabelDatabase {
	db := NewLabelDatabase()

	// Unimod names as reported by Proteome Discoverer
	db.Add("Label:13C(6)")       // Lys6 / Arg6
	db.Add("Label:13C(6)15N(2)") // Lys8
	db.Add("Label:13C(6)15N(4)") // Arg10
	db.Add("Label:13C(6)15N(1)") // Leu7
	db.Add("Label:2H(4)")        // Lys4
	db.Add("Label:2H(4)13C(1)")  // Lys5
	db.Add("Label:15N(2)")
	db.Add("Label:15N(4)")
	db.Add("Label:13C(5)15N(1)") // Val6 / Pro6
	db.Add("Label:13C(9)15N(1)") // Phe10

	return db
}

// Modification represents a modification name at a site such as "C3", "K" or "N-Term".
type Modification struct {
	Name string
	Site string
}

func (m Modification) String() string {
	return fmt.Sprintf("%s(%s)", m.Site, m.Name)
}

var (
	// Peptide group format: "2xOxidation [M4; M10]"
	peptideModPattern = regexp.MustCompile(`^(\d+)x(.+?)\s*\[(.*)\]$`)
	// PSM format: "K12(Label:13C(6)15N(2))", "N-Term(Prot)(Acetyl)"
	psmModPattern = regexp.MustCompile(`^(N-Term(?:\(Prot\))?|C-Term(?:\(Prot\))?|[A-Z]\d*)\((.+)\)$`)
	// Site localisation score suffix: "S5(99.1)"
	siteScorePattern = regexp.MustCompile(`\(\d+(?:\.\d+)?\)$`)
)

// ParseModString parses a Proteome Discoverer modification string. Both the peptide group
// format ("1xCarbamidomethyl [C3]; 2xOxidation [M4; M10]") and the PSM format
// ("C3(Carbamidomethyl); M4(Oxidation)") are accepted.
func ParseModString(modStr string) ([]Modification, error) {
	modStr = strings.TrimSpace(modStr)
	if modStr == "" {
		return nil, nil
	}

	var mods []Modification
	for _, part := range splitTopLevel(modStr) {
		if part == "" {
			continue
		}

		if m := peptideModPattern.FindStringSubmatch(part); m != nil {
			var count int
			if _, err := fmt.Sscanf(m[1], "%d", &count); err != nil {
				return nil, fmt.Errorf("invalid modification count in '%s': %w", part, err)
			}
			name := strings.TrimSpace(m[2])
			var sites []string
			for _, site := range strings.Split(m[3], ";") {
				site = normalizeSite(site)
				if site != "" {
					sites = append(sites, site)
				}
			}
			if len(sites) == 0 {
				sites = []string{""}
			}
			// Unlocalised modifications list fewer sites than their count
			for len(sites) < count {
				sites = append(sites, sites[len(sites)-1])
			}
			for _, site := range sites {
				mods = append(mods, Modification{Name: name, Site: site})
			}
			continue
		}

		if m := psmModPattern.FindStringSubmatch(part); m != nil {
			mods = append(mods, Modification{Name: strings.TrimSpace(m[2]), Site: normalizeSite(m[1])})
			continue
		}

		return nil, fmt.Errorf("invalid modification format '%s'", part)
	}

	return mods, nil
}

// splitTopLevel splits on ';' outside of brackets and parentheses
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func normalizeSite(site string) string {
	site = strings.TrimSpace(site)
	site = siteScorePattern.ReplaceAllString(site, "")
	return strings.TrimSuffix(site, "(Prot)")
}

// StripLabels parses a modification string and returns it in canonical form with all
// label modifications removed. Sites are sorted so that both export formats agree.
func (db *LabelDatabase) StripLabels(modStr string) (string, error) {
	mods, err := ParseModString(modStr)
	if err != nil {
		return "", err
	}

	var kept []Modification
	for _, mod := range mods {
		if !db.IsLabel(mod.Name) {
			kept = append(kept, mod)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Site != kept[j].Site {
			return kept[i].Site < kept[j].Site
		}
		return kept[i].Name < kept[j].Name
	})

	parts := make([]string, len(kept))
	for i, mod := range kept {
		parts[i] = mod.String()
	}
	return strings.Join(parts, "; "), nil
}

// NormalizeSequence upper-cases a sequence and removes flanking residues ("[K].PEPTIDE.[R]").
func NormalizeSequence(sequence string) string {
	sequence = strings.TrimSpace(sequence)
	if first, last := strings.Index(sequence, "."), strings.LastIndex(sequence, "."); first >= 0 && last > first {
		sequence = sequence[first+1 : last]
	}
	return strings.ToUpper(sequence)
}

// Key returns the label-independent join key of a peptide.
func (db *LabelDatabase) Key(sequence, modStr string) (PeptideKey, error) {
	mods, err := db.StripLabels(modStr)
	if err != nil {
		return PeptideKey{}, fmt.Errorf("peptide %s: %w", sequence, err)
	}
	return PeptideKey{Sequence: NormalizeSequence(sequence), Modifications: mods}, nil
}
