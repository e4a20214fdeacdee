package kinetics_test

import (
	"bytes"
	"errors"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/equilibrium"
	"github.com/san-kum/reaksim/internal/kinetics"
	"github.com/san-kum/reaksim/internal/partition"
	"github.com/san-kum/reaksim/internal/state"
)

var _ = Describe("Solver", func() {
	var (
		sys    *chem.System
		rs     *kinetics.ReactionSystem
		solver *kinetics.Solver
		st     *state.ChemicalState
	)

	// A(g) -> B(g) at k = 0.5 1/s, with A kinetic, B equilibrium, C inert.
	BeforeEach(func() {
		sys = isomerSystem()
		var err error
		rs, err = kinetics.NewReactionSystem(sys, kinetics.Reaction{
			Name:          "transfer",
			Stoichiometry: map[int]float64{0: -1, 1: 1},
			Rate:          kinetics.FirstOrder(0.5, 0),
		})
		Expect(err).NotTo(HaveOccurred())

		solver = kinetics.NewSolver(rs)
		p, err := partition.New([]int{1}, []int{0}, []int{2})
		Expect(err).NotTo(HaveOccurred())
		Expect(solver.SetPartition(p)).To(Succeed())

		st = state.New(sys)
		Expect(st.SetSpeciesAmounts([]float64{1, 0, 0.3})).To(Succeed())
	})

	Describe("lifecycle", func() {
		It("walks through the status transitions", func() {
			Expect(solver.Status()).To(Equal(kinetics.Unconfigured))
			Expect(solver.Configure(kinetics.DefaultOptions())).To(Succeed())
			Expect(solver.Status()).To(Equal(kinetics.Unconfigured))

			Expect(solver.Initialize(st, 0)).To(Succeed())
			Expect(solver.Status()).To(Equal(kinetics.Initialized))
			Expect(solver.Configure(kinetics.DefaultOptions())).To(Succeed())

			t, err := solver.Step(st, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(BeNumerically(">", 0))
			Expect(solver.Status()).To(Equal(kinetics.Stepping))

			err = solver.Configure(kinetics.DefaultOptions())
			Expect(err).To(MatchError(kinetics.ErrInvalidTransition))

			Expect(solver.Solve(st, 0, 1)).To(Succeed())
			Expect(solver.Status()).To(Equal(kinetics.Done))
			Expect(solver.Configure(kinetics.DefaultOptions())).To(MatchError(kinetics.ErrInvalidTransition))

			_, err = solver.Step(st, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(solver.Status()).To(Equal(kinetics.Stepping))
		})

		It("rejects stepping before Initialize", func() {
			_, err := solver.Step(st, 0)
			Expect(err).To(MatchError(kinetics.ErrNotInitialized))
		})

		It("rejects a state it was not initialised with", func() {
			Expect(solver.Initialize(st, 0)).To(Succeed())
			_, err := solver.Step(st.Clone(), 0)
			Expect(err).To(MatchError(kinetics.ErrNotInitialized))
		})

		It("rejects a nil state", func() {
			Expect(solver.Initialize(nil, 0)).To(MatchError(kinetics.ErrNotInitialized))
			Expect(solver.Status()).To(Equal(kinetics.Unconfigured))
		})

		It("rejects a state of a different size", func() {
			other, err := chem.NewSystem(chem.Phase{Name: "Gas", Kind: chem.Gaseous, Species: []chem.Species{
				{Name: "N2(g)", Formula: map[string]float64{"N": 2}},
			}})
			Expect(err).NotTo(HaveOccurred())

			err = solver.Initialize(state.New(other), 0)
			Expect(err).To(MatchError(kinetics.ErrDimensionMismatch))
			Expect(errors.Is(err, state.ErrDimensionMismatch)).To(BeTrue())
		})

		It("validates options", func() {
			bad := kinetics.DefaultOptions()
			bad.Method = "leapfrog"
			Expect(solver.Configure(bad)).To(MatchError(kinetics.ErrInvalidOptions))

			bad = kinetics.DefaultOptions()
			bad.RelTol = 0
			Expect(solver.Configure(bad)).To(MatchError(kinetics.ErrInvalidOptions))

			bad = kinetics.DefaultOptions()
			bad.MinStep, bad.MaxStep = 1, 0.5
			Expect(solver.Configure(bad)).To(MatchError(kinetics.ErrInvalidOptions))
		})
	})

	Describe("partitions", func() {
		It("rejects a partition of the wrong size", func() {
			p, err := partition.New([]int{0}, []int{1}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(solver.SetPartition(p)).To(MatchError(partition.ErrInvalidPartition))
		})

		It("installs a partition from a descriptor", func() {
			Expect(solver.SetPartitionString("kinetic = A(g); inert = C(g)")).To(Succeed())
			Expect(solver.Partition().Equilibrium()).To(Equal([]int{1}))
			Expect(solver.Partition().Kinetic()).To(Equal([]int{0}))
			Expect(solver.Partition().Inert()).To(Equal([]int{2}))

			Expect(solver.SetPartitionString("kinetic = D(g)")).To(MatchError(chem.ErrUnknownName))
		})

		It("applies a new partition from the next step", func() {
			Expect(solver.Initialize(st, 0)).To(Succeed())

			t, err := solver.Step(st, 0)
			Expect(err).NotTo(HaveOccurred())
			n := st.SpeciesAmounts()
			Expect(n[0]).To(BeNumerically("<", 1))
			Expect(n[1]).To(BeNumerically(">", 0))

			// B becomes inert and C kinetic, so the integrated vector grows
			p, err := partition.New(nil, []int{0, 2}, []int{1})
			Expect(err).NotTo(HaveOccurred())
			Expect(solver.SetPartition(p)).To(Succeed())

			t, err = solver.Step(st, t)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(BeNumerically(">", 0))
			Expect(solver.Steps()).To(Equal(2))

			m := st.SpeciesAmounts()
			Expect(m[0]).To(BeNumerically("<", n[0]))
			Expect(m[1]).To(Equal(n[1]))
			Expect(m[2]).To(Equal(n[2]))
		})

		It("defaults to all kinetic", func() {
			fresh := kinetics.NewSolver(rs)
			Expect(fresh.Partition().Kinetic()).To(Equal([]int{0, 1, 2}))
		})
	})

	Describe("Solve", func() {
		DescribeTable("conserves elements while the kinetic species decays",
			func(method string) {
				opts := kinetics.DefaultOptions()
				opts.Method = method
				Expect(solver.Configure(opts)).To(Succeed())

				b0, err := st.ElementAmountByName("X")
				Expect(err).NotTo(HaveOccurred())

				Expect(solver.Solve(st, 0, 10)).To(Succeed())

				b1, err := st.ElementAmountByName("X")
				Expect(err).NotTo(HaveOccurred())
				Expect(b1).To(BeNumerically("~", b0, 1e-6))

				n := st.SpeciesAmounts()
				Expect(n[0]).To(BeNumerically("<", 1))
				Expect(n[0]).To(BeNumerically("~", math.Exp(-5), 1e-3))
				Expect(n[0] + n[1]).To(BeNumerically("~", 1, 1e-6))
				Expect(n[2]).To(Equal(0.3))
			},
			Entry("dopri5", "dopri5"),
			Entry("rk4", "rk4"),
			Entry("euler", "euler"),
		)

		It("conserves elements at every accepted step", func() {
			var drift float64
			solver.AddObserver(kinetics.ObserverFunc(func(s *state.ChemicalState, t float64) {
				b, _ := s.ElementAmountByName("X")
				drift = math.Max(drift, math.Abs(b-1.3))
			}))
			Expect(solver.Solve(st, 0, 5)).To(Succeed())
			Expect(drift).To(BeNumerically("<", 1e-6))
		})

		It("caps steps and lands exactly on the end time", func() {
			var times []float64
			solver.AddObserver(kinetics.ObserverFunc(func(_ *state.ChemicalState, t float64) {
				times = append(times, t)
			}))

			Expect(solver.SolveWithStep(st, 0, 2, 0.25)).To(Succeed())
			Expect(times).To(HaveLen(solver.Steps()))
			Expect(times[len(times)-1]).To(Equal(2.0))

			prev := 0.0
			for _, t := range times {
				Expect(t - prev).To(BeNumerically("<=", 0.25+1e-12))
				prev = t
			}
		})

		It("honours a per-call step cap", func() {
			Expect(solver.Initialize(st, 0)).To(Succeed())
			t, err := solver.StepMax(st, 0, 1e-3)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(BeNumerically("<=", 1e-3))

			_, err = solver.StepMax(st, t, 0)
			Expect(err).To(MatchError(kinetics.ErrInvalidOptions))
		})

		It("rejects an end time before the start time", func() {
			Expect(solver.Solve(st, 1, 0)).To(MatchError(kinetics.ErrInvalidOptions))
		})

		DescribeTable("rejects non-finite times without stepping",
			func(t0, t1, dt float64) {
				before := st.SpeciesAmounts()
				Expect(solver.SolveWithStep(st, t0, t1, dt)).To(MatchError(kinetics.ErrInvalidOptions))
				Expect(solver.Steps()).To(Equal(0))
				Expect(solver.Status()).NotTo(Equal(kinetics.Done))
				Expect(st.SpeciesAmounts()).To(Equal(before))
			},
			Entry("NaN end", 0.0, math.NaN(), 0.0),
			Entry("infinite end", 0.0, math.Inf(1), 0.0),
			Entry("NaN start", math.NaN(), 1.0, 0.0),
			Entry("NaN step cap", 0.0, 1.0, math.NaN()),
		)
	})

	Describe("error control", func() {
		It("fails after exhausting retries and leaves the state untouched", func() {
			var logs bytes.Buffer
			solver.SetLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

			opts := kinetics.DefaultOptions()
			opts.InitialStep = 100
			opts.MaxRetries = 0
			Expect(solver.Configure(opts)).To(Succeed())
			Expect(solver.Initialize(st, 0)).To(Succeed())

			before := st.SpeciesAmounts()
			_, err := solver.Step(st, 0)
			Expect(err).To(MatchError(kinetics.ErrStepFailed))

			var stepErr *kinetics.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(Equal(1))
			Expect(stepErr.Time).To(Equal(0.0))

			Expect(st.SpeciesAmounts()).To(Equal(before))
			Expect(logs.String()).To(ContainSubstring("step rejected"))
		})

		It("reports an equilibrium failure and leaves the state untouched", func() {
			sys := carbonicSystem()
			stoich, err := kinetics.ParseEquation(sys, "CO2(g) = CO2(aq)")
			Expect(err).NotTo(HaveOccurred())
			rs, err := kinetics.NewReactionSystem(sys, kinetics.Reaction{
				Name:          "dissolution",
				Stoichiometry: stoich,
				Rate:          kinetics.MassAction(0.01, 0.3, stoich),
			})
			Expect(err).NotTo(HaveOccurred())

			solver := kinetics.NewSolver(rs)
			Expect(solver.SetPartitionString("kinetic = CO2(g)")).To(Succeed())
			opts := kinetics.DefaultOptions()
			opts.Equilibrium.MaxIterations = 1
			opts.Equilibrium.Tolerance = 1e-300
			Expect(solver.Configure(opts)).To(Succeed())

			st := state.New(sys)
			Expect(st.SetSpeciesAmountByName("H2O(l)", 55.508)).To(Succeed())
			Expect(st.SetSpeciesAmountByName("CO2(g)", 1)).To(Succeed())
			Expect(solver.Initialize(st, 0)).To(Succeed())

			before := st.SpeciesAmounts()
			t, err := solver.Step(st, 0)
			Expect(err).To(MatchError(kinetics.ErrEquilibrationFailed))
			Expect(errors.Is(err, equilibrium.ErrEquilibrationFailed)).To(BeTrue())
			Expect(t).To(Equal(0.0))

			var stepErr *kinetics.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(Equal(1))

			Expect(st.SpeciesAmounts()).To(Equal(before))
			Expect(solver.Steps()).To(Equal(0))
		})

		It("retries with smaller steps when allowed", func() {
			opts := kinetics.DefaultOptions()
			opts.InitialStep = 100
			Expect(solver.Configure(opts)).To(Succeed())
			Expect(solver.Initialize(st, 0)).To(Succeed())

			t, err := solver.Step(st, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(BeNumerically("<", 100))
		})
	})

	Describe("coupling with aqueous equilibrium", func() {
		It("dissolves CO2 until the gas and solution are in equilibrium", func() {
			sys := carbonicSystem()
			stoich, err := kinetics.ParseEquation(sys, "CO2(g) = CO2(aq)")
			Expect(err).NotTo(HaveOccurred())

			RT := chem.GasConstant * 298.15
			K := math.Exp(-(-385974.0 + 394358.7) / RT)
			kf := 0.01
			rs, err := kinetics.NewReactionSystem(sys, kinetics.Reaction{
				Name:          "dissolution",
				Stoichiometry: stoich,
				Rate:          kinetics.MassAction(kf, kf/K, stoich),
			})
			Expect(err).NotTo(HaveOccurred())

			solver := kinetics.NewSolver(rs)
			Expect(solver.SetPartitionString("kinetic = CO2(g)")).To(Succeed())
			opts := kinetics.DefaultOptions()
			opts.MaxStep = 0.5
			Expect(solver.Configure(opts)).To(Succeed())

			st := state.New(sys)
			Expect(st.SetSpeciesAmountByName("H2O(l)", 55.508)).To(Succeed())
			Expect(st.SetSpeciesAmountByName("CO2(g)", 1)).To(Succeed())
			b0 := st.ElementAmounts()

			Expect(solver.Solve(st, 0, 100)).To(Succeed())

			b1 := st.ElementAmounts()
			for j := range b0 {
				Expect(b1[j]).To(BeNumerically("~", b0[j], 1e-6*math.Max(1, math.Abs(b0[j]))))
			}

			m, err := state.Extract(st, "m[CO2(aq)]")
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(BeNumerically("~", K, 1e-2*K))

			pH, err := state.Extract(st, "pH")
			Expect(err).NotTo(HaveOccurred())
			Expect(pH).To(BeNumerically(">", 3.5))
			Expect(pH).To(BeNumerically("<", 5))
		})
	})
})
