package picamraw

import (
	"bytes"
	"image/jpeg"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRenderShadingOverlayBytes(t *testing.T) {
	data, err := RenderShadingOverlayBytes(testTable(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// 5 columns of 80px cells per panel, two panels and three gaps
	if cfg.Width != 2*400+30 {
		t.Errorf("overlay width %d, want 830", cfg.Width)
	}
	if cfg.Height != 2*(240+20)+30+40 {
		t.Errorf("overlay height %d, want 590", cfg.Height)
	}
}

func TestRenderShadingOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lst.jpg")
	if err := RenderShadingOverlay(FlatLensShadingTable(39, 52), nil, path); err != nil {
		t.Fatal(err)
	}
	if err := RenderShadingOverlay(nil, nil, path); err == nil {
		t.Error("nil table rendered")
	}
}

func TestOverlaySummaryUsesUnityGain(t *testing.T) {
	table := FlatLensShadingTable(3, 5)
	tests := []struct {
		unity float64
		want  []string
	}{
		{32, []string{"Table: 5 x 3 cells, gain 32..128 (unity 32)", "Max correction: x4.00"}},
		{64, []string{"Table: 5 x 3 cells, gain 32..128 (unity 64)", "Max correction: x2.00"}},
	}
	for _, tc := range tests {
		if d := cmp.Diff(tc.want, overlaySummary(table, 32, 128, tc.unity)); d != "" {
			t.Errorf("unity %g (-want +got):\n%s", tc.unity, d)
		}
	}

	p := NewLensShadingParams()
	p.UnityGain = 64
	if _, err := RenderShadingOverlayBytes(table, p); err != nil {
		t.Fatal(err)
	}
	p.UnityGain = 0
	if _, err := RenderShadingOverlayBytes(table, p); err == nil {
		t.Error("zero unity gain accepted")
	}
}

func TestGainColor(t *testing.T) {
	if gainColor(40, 40, 40).G != 100 {
		t.Error("flat table should render green")
	}
	lo, hi := gainColor(32, 32, 255), gainColor(255, 32, 255)
	if lo.B <= lo.R || hi.R <= hi.B {
		t.Errorf("ramp runs the wrong way: lo=%v hi=%v", lo, hi)
	}
}
