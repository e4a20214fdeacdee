package state

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/units"
)

// Extract evaluates a query such as "n[CO2(g)]", "b[C,Aqueous]:mmol",
// "m[HCO3-]", "a[H+]" or "pH" against st.
//
//	query := "pH" | kind "[" name [ "," phase ] "]" [ ":" units ]
//	kind  := "n" | "b" | "m" | "a"
//
// The element form b[elem][phase] is accepted as well. Amounts default to
// mol and molalities to molal; activities and pH take no units.
func Extract(st *ChemicalState, query string) (float64, error) {
	q, err := parseQuery(query)
	if err != nil {
		return 0, err
	}
	return q.eval(st)
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		switch c := s[i]; c {
		case ' ', '\t':
			i++
		case '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case ':':
			toks = append(toks, token{tokColon, ":", i})
			i++
		default:
			start := i
			for i < len(s) && !strings.ContainsRune("[],: \t", rune(s[i])) {
				i++
			}
			toks = append(toks, token{tokWord, s[start:i], start})
		}
	}
	return append(toks, token{tokEOF, "", len(s)})
}

type query struct {
	kind  string
	name  string
	phase string
	unit  string
}

type queryParser struct {
	src  string
	toks []token
	pos  int
}

func (p *queryParser) peek() token { return p.toks[p.pos] }

func (p *queryParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *queryParser) expect(k tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != k {
		return t, p.errorf(t, "expected %s", what)
	}
	return t, nil
}

func (p *queryParser) errorf(t token, format string, args ...any) error {
	return fmt.Errorf("%w: %q at offset %d: %s", ErrInvalidQuery, p.src, t.pos, fmt.Sprintf(format, args...))
}

func parseQuery(s string) (query, error) {
	p := &queryParser{src: s, toks: tokenize(s)}
	var q query

	head, err := p.expect(tokWord, "quantity")
	if err != nil {
		return q, err
	}
	q.kind = head.text

	switch q.kind {
	case "pH":
	case "n", "b", "m", "a":
		if _, err := p.expect(tokLBracket, "'['"); err != nil {
			return q, err
		}
		name, err := p.expect(tokWord, "name")
		if err != nil {
			return q, err
		}
		q.name = name.text

		switch p.peek().kind {
		case tokComma:
			p.next()
			phase, err := p.expect(tokWord, "phase")
			if err != nil {
				return q, err
			}
			q.phase = phase.text
			if _, err := p.expect(tokRBracket, "']'"); err != nil {
				return q, err
			}
		default:
			if _, err := p.expect(tokRBracket, "']'"); err != nil {
				return q, err
			}
			if p.peek().kind == tokLBracket {
				p.next()
				phase, err := p.expect(tokWord, "phase")
				if err != nil {
					return q, err
				}
				q.phase = phase.text
				if _, err := p.expect(tokRBracket, "']'"); err != nil {
					return q, err
				}
			}
		}
		if q.phase != "" && q.kind != "b" {
			return q, fmt.Errorf("%w: %q: only element amounts accept a phase", ErrInvalidQuery, s)
		}
	default:
		return q, p.errorf(head, "unknown quantity %q", q.kind)
	}

	if p.peek().kind == tokColon {
		p.next()
		unit, err := p.expect(tokWord, "units")
		if err != nil {
			return q, err
		}
		q.unit = unit.text
	}
	if t := p.peek(); t.kind != tokEOF {
		return q, p.errorf(t, "unexpected %q", t.text)
	}
	return q, nil
}

func (q query) eval(st *ChemicalState) (float64, error) {
	sys := st.system
	switch q.kind {
	case "n":
		return st.SpeciesAmountIn(q.name, q.unitOr("mol"))

	case "b":
		if q.phase != "" {
			return st.ElementAmountInPhaseIn(q.name, q.phase, q.unitOr("mol"))
		}
		return st.ElementAmountIn(q.name, q.unitOr("mol"))

	case "m":
		i, err := sys.IndexSpecies(q.name)
		if err != nil {
			return 0, err
		}
		iw := sys.Solvent()
		if iw < 0 {
			return 0, fmt.Errorf("%w: molality needs the solvent %s", chem.ErrUnknownName, chem.SolventName)
		}
		kgWater := st.n[iw] * chem.WaterMolarMass
		if kgWater == 0 {
			return 0, fmt.Errorf("%w: molality of %s is undefined without solvent", ErrInvalidState, q.name)
		}
		return units.Convert(st.n[i]/kgWater, "molal", q.unitOr("molal"))

	case "a":
		if err := q.dimensionless(); err != nil {
			return 0, err
		}
		i, err := sys.IndexSpecies(q.name)
		if err != nil {
			return 0, err
		}
		return math.Exp(sys.LnActivities(st.T, st.P, st.n)[i]), nil

	case "pH":
		if err := q.dimensionless(); err != nil {
			return 0, err
		}
		i, err := sys.IndexSpecies("H+")
		if err != nil {
			return 0, err
		}
		return -sys.LnActivities(st.T, st.P, st.n)[i] / math.Ln10, nil
	}
	return 0, fmt.Errorf("%w: unknown quantity %q", ErrInvalidQuery, q.kind)
}

func (q query) unitOr(def string) string {
	if q.unit == "" {
		return def
	}
	return q.unit
}

func (q query) dimensionless() error {
	if q.unit != "" {
		return fmt.Errorf("%w: %s is dimensionless, got %q", units.ErrUnsupportedUnits, q.kind, q.unit)
	}
	return nil
}
