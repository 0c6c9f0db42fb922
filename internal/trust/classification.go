package trust

// Classification levels form a strict ordering. Labels outside the hierarchy
// rank above TOP_SECRET so an unrecognized resource marking can never slip
// under a trust ceiling.
const (
	ClassUnclassified = "UNCLASSIFIED"
	ClassRestricted   = "RESTRICTED"
	ClassConfidential = "CONFIDENTIAL"
	ClassSecret       = "SECRET"
	ClassTopSecret    = "TOP_SECRET"
)

var classificationRank = map[string]int{
	ClassUnclassified: 0,
	ClassRestricted:   1,
	ClassConfidential: 2,
	ClassSecret:       3,
	ClassTopSecret:    4,
}

// ClassificationRank returns the ordinal rank of a classification label and
// whether the label is part of the hierarchy.
func ClassificationRank(label string) (int, bool) {
	rank, ok := classificationRank[label]
	return rank, ok
}

// ExceedsCeiling reports whether a resource classification is above the
// given ceiling. An unrecognized resource label always exceeds; an
// unrecognized ceiling admits nothing above UNCLASSIFIED.
func ExceedsCeiling(resource, ceiling string) bool {
	resourceRank, ok := ClassificationRank(resource)
	if !ok {
		return true
	}
	ceilingRank, ok := ClassificationRank(ceiling)
	if !ok {
		ceilingRank = 0
	}
	return resourceRank > ceilingRank
}

// Translator maps clearance labels between per-instance classification
// vocabularies. A label with no mapping for the target instance passes
// through unchanged: coalition vocabularies overlap, so an unmapped label is
// not an error.
type Translator struct {
	mappings map[string]map[string]string
}

// NewTranslator builds a translator from per-instance mapping tables keyed
// by instance code.
func NewTranslator(mappings map[string]map[string]string) *Translator {
	if mappings == nil {
		mappings = map[string]map[string]string{}
	}
	return &Translator{mappings: mappings}
}

// Translate converts a clearance label into the target instance's
// vocabulary. The second return reports whether a mapping was applied.
func (t *Translator) Translate(targetInstance, label string) (string, bool) {
	table, ok := t.mappings[targetInstance]
	if !ok {
		return label, false
	}
	translated, ok := table[label]
	if !ok {
		return label, false
	}
	return translated, true
}
