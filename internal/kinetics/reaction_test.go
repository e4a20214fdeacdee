package kinetics_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/kinetics"
)

var _ = Describe("Reactions", func() {
	var sys *chem.System

	BeforeEach(func() {
		sys = carbonicSystem()
	})

	Describe("ParseEquation", func() {
		It("assigns reactants negative and products positive coefficients", func() {
			stoich, err := kinetics.ParseEquation(sys, "CO2(g) = CO2(aq)")
			Expect(err).NotTo(HaveOccurred())
			Expect(stoich).To(Equal(map[int]float64{5: -1, 3: 1}))
		})

		It("reads coefficients and '+' separators", func() {
			stoich, err := kinetics.ParseEquation(sys, "CO2(aq) + H2O(l) = H+ + HCO3-")
			Expect(err).NotTo(HaveOccurred())
			Expect(stoich).To(Equal(map[int]float64{3: -1, 0: -1, 1: 1, 4: 1}))

			stoich, err = kinetics.ParseEquation(sys, "2 H2O(l) = H+ + OH- + H2O(l)")
			Expect(err).NotTo(HaveOccurred())
			Expect(stoich).To(Equal(map[int]float64{0: -1, 1: 1, 2: 1}))
		})

		DescribeTable("rejects malformed equations",
			func(eq string, want error) {
				_, err := kinetics.ParseEquation(sys, eq)
				Expect(err).To(MatchError(want))
			},
			Entry("no equals sign", "CO2(g) CO2(aq)", kinetics.ErrInvalidReaction),
			Entry("unknown species", "CO2(g) = CO2(s)", chem.ErrUnknownName),
			Entry("dangling coefficient", "CO2(g) = CO2(aq) 2", kinetics.ErrInvalidReaction),
			Entry("double coefficient", "2 3 CO2(g) = CO2(aq)", kinetics.ErrInvalidReaction),
			Entry("negative coefficient", "-1 CO2(g) = CO2(aq)", kinetics.ErrInvalidReaction),
			Entry("no net change", "CO2(g) = CO2(g)", kinetics.ErrInvalidReaction),
		)
	})

	Describe("rate laws", func() {
		It("evaluates mass action from activities", func() {
			law := kinetics.MassAction(2, 0.5, map[int]float64{0: -2, 1: 1})
			a := []float64{0.3, 0.4}
			Expect(law(298.15, 1e5, nil, a)).To(BeNumerically("~", 2*0.09-0.5*0.4, 1e-15))
		})

		It("evaluates first order decay from amounts", func() {
			law := kinetics.FirstOrder(0.5, 1)
			Expect(law(298.15, 1e5, []float64{9, 4}, nil)).To(Equal(2.0))
		})

		It("stops dissolving an exhausted mineral", func() {
			stoich := map[int]float64{0: -1, 1: 1}
			law := kinetics.MineralRate(1e-3, 2, -1, 0, stoich)

			undersaturated := []float64{1, 0.01}
			Expect(law(298.15, 1e5, []float64{1, 0}, undersaturated)).To(BeNumerically("~", 2e-3*0.9, 1e-12))
			Expect(law(298.15, 1e5, []float64{0, 0}, undersaturated)).To(Equal(0.0))

			supersaturated := []float64{1, 1}
			Expect(law(298.15, 1e5, []float64{0, 0}, supersaturated)).To(BeNumerically("<", 0))
		})
	})

	Describe("ReactionSystem", func() {
		It("builds the stoichiometric matrix", func() {
			stoich, err := kinetics.ParseEquation(sys, "CO2(aq) + H2O(l) = H+ + HCO3-")
			Expect(err).NotTo(HaveOccurred())

			rs, err := kinetics.NewReactionSystem(sys,
				kinetics.Reaction{Stoichiometry: stoich, Rate: kinetics.MassAction(1, 1, stoich)},
				kinetics.Reaction{Name: "decay", Stoichiometry: map[int]float64{5: -1, 3: 1}, Rate: kinetics.FirstOrder(1, 5)},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(rs.NumReactions()).To(Equal(2))
			Expect(rs.Reaction(0).Name).To(Equal("R1"))
			Expect(rs.Reaction(1).Name).To(Equal("decay"))

			nu := rs.Stoichiometry()
			r, c := nu.Dims()
			Expect(r).To(Equal(2))
			Expect(c).To(Equal(sys.NumSpecies()))
			Expect(nu.At(0, 4)).To(Equal(1.0))
			Expect(nu.At(1, 5)).To(Equal(-1.0))

			for k := 0; k < rs.NumReactions(); k++ {
				for _, v := range rs.Imbalance(k) {
					Expect(v).To(BeNumerically("~", 0, 1e-15))
				}
			}
		})

		It("returns copies of its reactions", func() {
			rs, err := kinetics.NewReactionSystem(sys, kinetics.Reaction{
				Stoichiometry: map[int]float64{5: -1, 3: 1},
				Rate:          kinetics.FirstOrder(1, 5),
			})
			Expect(err).NotTo(HaveOccurred())

			r := rs.Reaction(0)
			r.Stoichiometry[5] = 42
			Expect(rs.Reaction(0).Stoichiometry[5]).To(Equal(-1.0))
		})

		It("evaluates rates at a composition", func() {
			rs, err := kinetics.NewReactionSystem(sys, kinetics.Reaction{
				Stoichiometry: map[int]float64{5: -1, 3: 1},
				Rate:          kinetics.FirstOrder(0.1, 5),
			})
			Expect(err).NotTo(HaveOccurred())

			n := make([]float64, sys.NumSpecies())
			n[0], n[5] = 55.5, 2
			Expect(rs.Rates(298.15, 1e5, n)).To(Equal([]float64{0.2}))
		})

		It("reports unbalanced reactions", func() {
			rs, err := kinetics.NewReactionSystem(sys, kinetics.Reaction{
				Stoichiometry: map[int]float64{3: 1},
				Rate:          kinetics.FirstOrder(1, 3),
			})
			Expect(err).NotTo(HaveOccurred())

			imb := rs.Imbalance(0)
			ic, err := sys.IndexElement("C")
			Expect(err).NotTo(HaveOccurred())
			Expect(imb[ic]).To(Equal(1.0))
		})

		It("has no matrix without reactions", func() {
			rs, err := kinetics.NewReactionSystem(sys)
			Expect(err).NotTo(HaveOccurred())
			Expect(rs.Stoichiometry()).To(BeNil())
			Expect(rs.Rates(298.15, 1e5, make([]float64, sys.NumSpecies()))).To(BeEmpty())
		})

		DescribeTable("rejects invalid reactions",
			func(r kinetics.Reaction) {
				_, err := kinetics.NewReactionSystem(sys, r)
				Expect(err).To(MatchError(kinetics.ErrInvalidReaction))
			},
			Entry("missing rate law", kinetics.Reaction{Stoichiometry: map[int]float64{0: 1}}),
			Entry("empty stoichiometry", kinetics.Reaction{Rate: kinetics.FirstOrder(1, 0)}),
			Entry("species out of range", kinetics.Reaction{Stoichiometry: map[int]float64{99: 1}, Rate: kinetics.FirstOrder(1, 0)}),
		)
	})
})
