package state

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteTable renders the state as an aligned table: conditions first,
// then one row per species and one per element.
func (s *ChemicalState) WriteTable(w io.Writer) error {
	sys := s.system
	a := sys.Activities(s.T, s.P, s.n)
	g0 := sys.StandardGibbsEnergies(s.T, s.P)
	mu := sys.ChemicalPotentials(s.T, s.P, s.n)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Temperature [K]\t%g\n", s.T)
	fmt.Fprintf(tw, "Pressure [Pa]\t%g\n", s.P)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "INDEX\tSPECIES\tAMOUNT [mol]\tACTIVITY\tSTANDARD GIBBS [J/mol]\tCHEM POTENTIAL [J/mol]\tSPECIES POTENTIAL [J/mol]")
	for i := range s.n {
		fmt.Fprintf(tw, "%d\t%s\t%.6e\t%.6e\t%.6e\t%.6e\t%.6e\n", i, sys.Species(i).Name, s.n[i], a[i], g0[i], mu[i], s.z[i])
	}
	fmt.Fprintln(tw)

	b := sys.ElementAmounts(s.n)
	fmt.Fprintln(tw, "INDEX\tELEMENT\tAMOUNT [mol]\tPOTENTIAL [J/mol]")
	for i := range b {
		fmt.Fprintf(tw, "%d\t%s\t%.6e\t%.6e\n", i, sys.Element(i).Name, b[i], s.y[i])
	}
	return tw.Flush()
}

func (s *ChemicalState) String() string {
	var b strings.Builder
	_ = s.WriteTable(&b)
	return b.String()
}
