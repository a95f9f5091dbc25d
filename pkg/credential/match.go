package credential

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/oliveagle/jsonpath"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// WholeCredentialPath is requested when a matching descriptor constrains no fields.
const WholeCredentialPath = "$"

// claimSet evaluates presentation definitions against the decoded claims of a credential.
type claimSet struct {
	format string
	claims map[string]any
}

func (c claimSet) CheckPresentationDefinition(def *oid4vp.PresentationDefinition) []oid4vp.InputDescriptor {
	if def == nil {
		return nil
	}
	var satisfied []oid4vp.InputDescriptor
	for _, d := range def.InputDescriptors {
		if c.satisfies(def, d) {
			satisfied = append(satisfied, d)
		}
	}
	return satisfied
}

func (c claimSet) satisfies(def *oid4vp.PresentationDefinition, d oid4vp.InputDescriptor) bool {
	if !def.Accepts(d, c.format) {
		return false
	}
	for _, f := range d.Constraints.Fields {
		if f.Optional {
			continue
		}
		if _, _, ok := c.resolve(f); !ok {
			return false
		}
	}
	return true
}

func (c claimSet) RequestedFields(def *oid4vp.PresentationDefinition) []RequestedField {
	var (
		fields []RequestedField
		seen   = make(map[string]struct{})
	)
	add := func(rf RequestedField) {
		if _, ok := seen[rf.ResolvedPath]; ok {
			return
		}
		seen[rf.ResolvedPath] = struct{}{}
		fields = append(fields, rf)
	}
	for _, d := range c.CheckPresentationDefinition(def) {
		if len(d.Constraints.Fields) == 0 {
			add(RequestedField{
				ID:           d.ID,
				Name:         d.Name,
				Path:         []string{WholeCredentialPath},
				Purpose:      d.Purpose,
				Required:     true,
				ResolvedPath: WholeCredentialPath,
				Value:        displayValue(c.claims),
			})
			continue
		}
		for _, f := range d.Constraints.Fields {
			path, value, ok := c.resolve(f)
			if !ok {
				continue
			}
			add(RequestedField{
				ID:             f.ID,
				Name:           f.Name,
				Path:           append([]string{}, f.Path...),
				Purpose:        f.Purpose,
				Required:       !f.Optional,
				IntentToRetain: f.IntentToRetain,
				ResolvedPath:   path,
				Value:          displayValue(value),
			})
		}
	}
	return fields
}

// resolve returns the first path of the field that resolves to a value satisfying the filter.
func (c claimSet) resolve(f oid4vp.Field) (string, any, bool) {
	for _, p := range f.Path {
		value, err := jsonpath.JsonPathLookup(c.claims, NormalizePath(p))
		if err != nil || value == nil {
			continue
		}
		if len(f.Filter) > 0 && !filterAccepts(f.Filter, value) {
			continue
		}
		return p, value, true
	}
	return "", nil, false
}

var bracketSegment = regexp.MustCompile(`\[['"]([^'"\]]+)['"]\]`)

// NormalizePath rewrites bracket notation ($['address']['street']) into dot notation.
func NormalizePath(path string) string {
	return bracketSegment.ReplaceAllString(strings.TrimSpace(path), ".$1")
}

// PathSegments splits a JSONPath into its member names and array indexes, e.g. $.address.street -> [address street].
func PathSegments(path string) []string {
	path = strings.TrimPrefix(NormalizePath(path), "$")
	var segments []string
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		name := part
		var indexes []string
		if i := strings.Index(part, "["); i >= 0 {
			name = part[:i]
			for _, idx := range strings.Split(part[i:], "[") {
				if idx = strings.TrimSuffix(idx, "]"); idx != "" {
					indexes = append(indexes, idx)
				}
			}
		}
		if name != "" {
			segments = append(segments, name)
		}
		segments = append(segments, indexes...)
	}
	return segments
}

// filterAccepts evaluates the field filter as a JSON Schema against value.
func filterAccepts(f oid4vp.Filter, value any) bool {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(map[string]any(f)), gojsonschema.NewGoLoader(value))
	if err != nil {
		logrus.WithError(err).Debug("evaluating field filter")
		return false
	}
	return result.Valid()
}

func displayValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool, int, int64:
		return fmt.Sprint(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
