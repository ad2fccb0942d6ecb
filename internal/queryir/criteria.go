package queryir

// Criteria is a per-field comparison operator.
// The zero value Default means "the scalar family's default criteria".
type Criteria int

const (
	Default Criteria = iota
	EQ
	NE
	LT
	GT
	LE
	GE
	LIKE
	STARTS
	ENDS
	CASE
	EXACT
	IN
	NIN
	BETWEEN
	NOT_BETWEEN
	IS_NULL
	NOT_NULL
)

var criteriaNames = [...]string{
	Default:     "DEFAULT",
	EQ:          "EQ",
	NE:          "NE",
	LT:          "LT",
	GT:          "GT",
	LE:          "LE",
	GE:          "GE",
	LIKE:        "LIKE",
	STARTS:      "STARTS",
	ENDS:        "ENDS",
	CASE:        "CASE",
	EXACT:       "EXACT",
	IN:          "IN",
	NIN:         "NIN",
	BETWEEN:     "BETWEEN",
	NOT_BETWEEN: "NOT_BETWEEN",
	IS_NULL:     "IS_NULL",
	NOT_NULL:    "NOT_NULL",
}

func (c Criteria) String() string {
	if c >= 0 && int(c) < len(criteriaNames) {
		return criteriaNames[c]
	}
	return "UNKNOWN"
}

// ParseCriteria maps a criteria name ("EQ", "LIKE", ...) to its value.
// "DEFAULT" is not accepted; the default is expressed by a bare value.
func ParseCriteria(name string) (Criteria, bool) {
	for i, n := range criteriaNames {
		if Criteria(i) != Default && n == name {
			return Criteria(i), true
		}
	}
	return Default, false
}

// IsNullCheck reports whether c is IS_NULL or NOT_NULL.
func (c Criteria) IsNullCheck() bool {
	return c == IS_NULL || c == NOT_NULL
}

// IsRange reports whether c takes a two-element [low, high] value.
func (c Criteria) IsRange() bool {
	return c == BETWEEN || c == NOT_BETWEEN
}

// Negated reports whether c excludes matches (NE, NIN, NOT_BETWEEN).
func (c Criteria) Negated() bool {
	return c == NE || c == NIN || c == NOT_BETWEEN
}
