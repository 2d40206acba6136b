package filter

import (
	"testing"

	"github.com/ChrisMcGann/silacde/pkg/core"
)

func TestCheck(t *testing.T) {
	cfg := &Config{
		Contaminants:         map[string]struct{}{"P00761": {}},
		RequireUniqueProtein: true,
	}

	tests := []struct {
		name string
		id   core.FeatureID
		want Reason
	}{
		{"unique protein", core.FeatureID{MasterProteinAccessions: "P12345", ProteinGroups: 1}, Kept},
		{"group count not exported", core.FeatureID{MasterProteinAccessions: "P12345"}, Kept},
		{"empty master protein", core.FeatureID{MasterProteinAccessions: " "}, NoMasterProtein},
		{"flagged", core.FeatureID{MasterProteinAccessions: "P12345", Contaminant: true}, FlaggedContaminant},
		{"crap accession in group", core.FeatureID{MasterProteinAccessions: "P12345; P00761"}, ContaminantProtein},
		{"shared", core.FeatureID{MasterProteinAccessions: "P12345", ProteinGroups: 2}, SharedProteinGroups},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Check(&tt.id); got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckSharedAllowed(t *testing.T) {
	cfg := &Config{}
	id := core.FeatureID{MasterProteinAccessions: "P12345", ProteinGroups: 3}
	if got := cfg.Check(&id); got != Kept {
		t.Errorf("Check() = %q, want kept when unique proteins not required", got)
	}
}

func TestApplyPeptides(t *testing.T) {
	cfg := &Config{RequireUniqueProtein: true}
	features := []core.PeptideFeature{
		{FeatureID: core.FeatureID{Sequence: "A", MasterProteinAccessions: "P1", ProteinGroups: 1}},
		{FeatureID: core.FeatureID{Sequence: "B", MasterProteinAccessions: "P1", ProteinGroups: 2}},
		{FeatureID: core.FeatureID{Sequence: "C", MasterProteinAccessions: "P2", Contaminant: true}},
		{FeatureID: core.FeatureID{Sequence: "D", MasterProteinAccessions: "P2", ProteinGroups: 1}},
	}

	kept, summary := cfg.ApplyPeptides(features)
	if len(kept) != 2 || kept[0].Sequence != "A" || kept[1].Sequence != "D" {
		t.Errorf("ApplyPeptides() kept %+v", kept)
	}
	if summary.Total != 4 || summary.Kept != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Removed[SharedProteinGroups] != 1 || summary.Removed[FlaggedContaminant] != 1 {
		t.Errorf("removed = %v", summary.Removed)
	}
}

func TestApplyPSMs(t *testing.T) {
	cfg := &Config{}
	psms := []core.PSMFeature{
		{FeatureID: core.FeatureID{Sequence: "A", MasterProteinAccessions: "P1"}, QuanChannel: "Heavy"},
		{FeatureID: core.FeatureID{Sequence: "A", MasterProteinAccessions: "P1"}, QuanChannel: ""},
		{FeatureID: core.FeatureID{Sequence: "B"}, QuanChannel: "Light"},
	}

	kept, summary := cfg.ApplyPSMs(psms)
	if len(kept) != 2 || kept[0].QuanChannel != "Heavy" || kept[1].QuanChannel != "" {
		t.Errorf("ApplyPSMs() kept %+v", kept)
	}
	if summary.Kept != 2 || summary.Removed[NoMasterProtein] != 1 {
		t.Errorf("removed = %v", summary.Removed)
	}
}
