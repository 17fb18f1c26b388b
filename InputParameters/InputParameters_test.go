package InputParameters

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`
########################################
Title: "Adaptive Poisson"
Mesh: square
MeshDivisions: 4
Refinements: 1
AdaptiveRefinements: 2
RefineCenter: [0.5, 0.5]
Cycle: W
PreSmooth: 1
PostSmooth: 1
Coefficients:
  Reaction: 2
  Diffusion: 0.5
########################################
`)
	ip := NewInputParametersMG()
	require.NoError(t, ip.Parse(data))
	assert.Equal(t, "Adaptive Poisson", ip.Title)
	assert.Equal(t, 4, ip.MeshDivisions)
	assert.Equal(t, []float64{0.5, 0.5}, ip.RefineCenter)
	// Unset values keep their defaults
	assert.Equal(t, "SGS", ip.Smoother)
	assert.Equal(t, 0.25, ip.RefineRadius)
	n, err := ip.CycleType()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0.5, ip.Coefficient("Diffusion", 1))
	assert.Equal(t, 0., ip.Coefficient("Cubic", 0))
	require.NoError(t, ip.Validate())

	var buf bytes.Buffer
	ip.Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "\"Adaptive Poisson\"")
	assert.Contains(t, out, "[W(1,1)]")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Coefficients[Diffusion]")),
		bytes.Index(buf.Bytes(), []byte("Coefficients[Reaction]")))

	assert.Error(t, ip.Parse([]byte("MeshDivisions: [1")))
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(ip *InputParametersMG)
		ok     bool
	}{
		{"defaults", func(ip *InputParametersMG) {}, true},
		{"cycle count", func(ip *InputParametersMG) { ip.Cycle = "3" }, true},
		{"bad cycle", func(ip *InputParametersMG) { ip.Cycle = "F" }, false},
		{"zero cycle", func(ip *InputParametersMG) { ip.Cycle = "0" }, false},
		{"no refinement", func(ip *InputParametersMG) { ip.Refinements = 0 }, false},
		{"adaptive only", func(ip *InputParametersMG) { ip.Refinements, ip.AdaptiveRefinements = 0, 1 }, true},
		{"no divisions", func(ip *InputParametersMG) { ip.MeshDivisions = 0 }, false},
		{"negative smoothing", func(ip *InputParametersMG) { ip.PreSmooth = -1 }, false},
		{"no iterations", func(ip *InputParametersMG) { ip.MaxIterations = 0 }, false},
		{"center", func(ip *InputParametersMG) { ip.RefineCenter = []float64{0, 0, 0, 0} }, false},
	} {
		ip := NewInputParametersMG()
		tc.modify(ip)
		if tc.ok {
			assert.NoError(t, ip.Validate(), tc.name)
			continue
		}
		assert.Error(t, ip.Validate(), tc.name)
	}
}
