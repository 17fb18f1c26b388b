package InputParameters

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type InputParametersMG struct {
	Title               string             `yaml:"Title"`
	Mesh                string             `yaml:"Mesh"`
	MeshDivisions       int                `yaml:"MeshDivisions"`
	Refinements         int                `yaml:"Refinements"`
	AdaptiveRefinements int                `yaml:"AdaptiveRefinements"`
	RefineCenter        []float64          `yaml:"RefineCenter"`
	RefineRadius        float64            `yaml:"RefineRadius"`
	CopyRange           int                `yaml:"CopyRange"`
	Cycle               string             `yaml:"Cycle"` // V, W or the number of coarse grid visits
	PreSmooth           int                `yaml:"PreSmooth"`
	PostSmooth          int                `yaml:"PostSmooth"`
	BaseLevel           int                `yaml:"BaseLevel"`
	Smoother            string             `yaml:"Smoother"`
	Damping             float64            `yaml:"Damping"`
	BaseSolver          string             `yaml:"BaseSolver"`
	MaxIterations       int                `yaml:"MaxIterations"`
	Tolerance           float64            `yaml:"Tolerance"`
	Reduction           float64            `yaml:"Reduction"`
	NewtonSteps         int                `yaml:"NewtonSteps"`
	Coefficients        map[string]float64 `yaml:"Coefficients"` // Diffusion, Reaction and Cubic
}

// NewInputParametersMG returns the parameters of a Poisson problem on a twice refined square
func NewInputParametersMG() *InputParametersMG {
	return &InputParametersMG{
		Title:         "Poisson",
		Mesh:          "square",
		MeshDivisions: 2,
		Refinements:   2,
		RefineCenter:  []float64{0, 0, 0},
		RefineRadius:  0.25,
		CopyRange:     1,
		Cycle:         "V",
		PreSmooth:     2,
		PostSmooth:    2,
		Smoother:      "SGS",
		Damping:       0.8,
		BaseSolver:    "LU",
		MaxIterations: 50,
		Tolerance:     1.e-12,
		Reduction:     1.e-10,
		NewtonSteps:   10,
		Coefficients:  map[string]float64{"Diffusion": 1},
	}
}

func (ip *InputParametersMG) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// CycleType is the number of coarse grid visits per level
func (ip *InputParametersMG) CycleType() (n int, err error) {
	switch strings.ToUpper(ip.Cycle) {
	case "V":
		return 1, nil
	case "W":
		return 2, nil
	}
	if _, err = fmt.Sscanf(ip.Cycle, "%d", &n); err != nil || n < 1 {
		return 0, fmt.Errorf("cycle %q is not V, W or a positive count", ip.Cycle)
	}
	return
}

// Coefficient returns the named coefficient, def if it is not given
func (ip *InputParametersMG) Coefficient(name string, def float64) float64 {
	if val, ok := ip.Coefficients[name]; ok {
		return val
	}
	return def
}

func (ip *InputParametersMG) Validate() (err error) {
	switch {
	case ip.MeshDivisions < 1:
		err = fmt.Errorf("MeshDivisions must be positive, have %d", ip.MeshDivisions)
	case ip.Refinements < 0 || ip.AdaptiveRefinements < 0:
		err = fmt.Errorf("refinement counts must not be negative")
	case ip.Refinements+ip.AdaptiveRefinements == 0:
		err = fmt.Errorf("need at least one refinement for a multigrid hierarchy")
	case len(ip.RefineCenter) > 3:
		err = fmt.Errorf("RefineCenter has %d coordinates", len(ip.RefineCenter))
	case ip.PreSmooth < 0 || ip.PostSmooth < 0:
		err = fmt.Errorf("smoothing steps must not be negative")
	case ip.MaxIterations < 1:
		err = fmt.Errorf("MaxIterations must be positive, have %d", ip.MaxIterations)
	}
	if err != nil {
		return
	}
	_, err = ip.CycleType()
	return
}

func (ip *InputParametersMG) Print() {
	ip.Fprint(os.Stdout)
}

func (ip *InputParametersMG) Fprint(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%s/%d]\t\t= Mesh\n", ip.Mesh, ip.MeshDivisions)
	fmt.Fprintf(w, "[%d+%d]\t\t\t= Refinements (uniform+adaptive)\n", ip.Refinements, ip.AdaptiveRefinements)
	fmt.Fprintf(w, "[%s(%d,%d)]\t\t= Cycle\n", ip.Cycle, ip.PreSmooth, ip.PostSmooth)
	fmt.Fprintf(w, "[%s]\t\t\t= Smoother\n", ip.Smoother)
	fmt.Fprintf(w, "[%s]\t\t\t= Base Solver on level %d\n", ip.BaseSolver, ip.BaseLevel)
	fmt.Fprintf(w, "%8.2e\t\t= Reduction\n", ip.Reduction)
	keys := make([]string, len(ip.Coefficients))
	i := 0
	for k := range ip.Coefficients {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "Coefficients[%s] = %v\n", key, ip.Coefficients[key])
	}
}
