package lwm2m

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Penlect/emqxlwm2m/errors"
)

// Attributes is a write-attribute set: notification period bounds
// (pmin/pmax, seconds) and value thresholds (lt/st/gt). A nil field means
// the attribute is unset and is omitted on the wire.
type Attributes struct {
	PMin *int
	PMax *int
	Lt   *float64
	St   *float64
	Gt   *float64
}

// Text form: [pmin,pmax]lt:st:gt, every field individually omittable.
var attrRegex = regexp.MustCompile(
	`^(\[(?P<pmin>\d*),\s*(?P<pmax>\d*)\])?` +
		`(\s*(?P<lt>[^:]*?):(?P<st>[^:]*?):(?P<gt>[^:]*))?$`)

// ParseAttributes parses the "[pmin,pmax]lt:st:gt" form.
func ParseAttributes(s string) (Attributes, error) {
	match := attrRegex.FindStringSubmatch(s)
	if match == nil {
		return Attributes{}, errors.WrapInvalid(
			fmt.Errorf("bad attribute format: %q", s), "Attributes", "ParseAttributes", "match syntax")
	}
	fields := make(map[string]string)
	for i, name := range attrRegex.SubexpNames() {
		if name != "" && i < len(match) {
			fields[name] = match[i]
		}
	}

	var a Attributes
	for _, f := range []struct {
		name string
		dst  **int
	}{{"pmin", &a.PMin}, {"pmax", &a.PMax}} {
		if v := fields[f.name]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Attributes{}, errors.WrapInvalid(err, "Attributes", "ParseAttributes", "parse "+f.name)
			}
			*f.dst = &n
		}
	}
	for _, f := range []struct {
		name string
		dst  **float64
	}{{"lt", &a.Lt}, {"st", &a.St}, {"gt", &a.Gt}} {
		if v := fields[f.name]; v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Attributes{}, errors.WrapInvalid(err, "Attributes", "ParseAttributes", "parse "+f.name)
			}
			*f.dst = &n
		}
	}
	return a, nil
}

// String renders the "[pmin,pmax]lt:st:gt" form, empty when no attribute
// is set.
func (a Attributes) String() string {
	var out string
	pmin, pmax := "", ""
	if a.PMin != nil {
		pmin = strconv.Itoa(*a.PMin)
	}
	if a.PMax != nil {
		pmax = strconv.Itoa(*a.PMax)
	}
	if pmin != "" || pmax != "" {
		out += fmt.Sprintf("[%s,%s]", pmin, pmax)
	}
	lt, st, gt := "", "", ""
	if a.Lt != nil {
		lt = strconv.FormatFloat(*a.Lt, 'g', -1, 64)
	}
	if a.St != nil {
		st = strconv.FormatFloat(*a.St, 'g', -1, 64)
	}
	if a.Gt != nil {
		gt = strconv.FormatFloat(*a.Gt, 'g', -1, 64)
	}
	if lt != "" || st != "" || gt != "" {
		out += fmt.Sprintf("%s:%s:%s", lt, st, gt)
	}
	return out
}

// Len returns the number of attributes that are set.
func (a Attributes) Len() int {
	n := 0
	for _, set := range []bool{a.PMin != nil, a.PMax != nil, a.Lt != nil, a.St != nil, a.Gt != nil} {
		if set {
			n++
		}
	}
	return n
}

// Int returns a pointer to v, for building Attributes literals.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for building Attributes literals.
func Float(v float64) *float64 { return &v }
