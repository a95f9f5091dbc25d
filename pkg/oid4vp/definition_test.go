package oid4vp

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefinition = `{
	"id": "32f54163-7166-48f1-93d8-ff217bdb0653",
	"format": {"vc+sd-jwt": {"sd-jwt_alg_values": ["ES256"]}},
	"input_descriptors": [
		{
			"id": "pid",
			"constraints": {
				"limit_disclosure": "required",
				"fields": [
					{"path": ["$.given_name"]},
					{"path": ["$.age_over_18"], "filter": {"type": "boolean", "const": true}, "optional": true}
				]
			}
		},
		{
			"id": "diploma",
			"format": {"jwt_vc_json": {"alg": ["ES256"]}},
			"constraints": {"fields": [{"path": ["$.vc.credentialSubject.degree"]}]}
		}
	]
}`

func TestPresentationDefinition(t *testing.T) {
	var pd PresentationDefinition
	require.NoError(t, json.Unmarshal([]byte(testDefinition), &pd))
	require.NoError(t, pd.IsValid())

	assert.True(t, pd.Accepts(pd.InputDescriptors[0], FormatSDJWTVC))
	assert.False(t, pd.Accepts(pd.InputDescriptors[0], FormatJWTVCJSON))
	assert.True(t, pd.Accepts(pd.InputDescriptors[1], FormatJWTVCJSON))
	assert.False(t, pd.Accepts(pd.InputDescriptors[1], FormatSDJWTVC))
	assert.True(t, pd.InputDescriptors[0].Constraints.Fields[1].Optional)
	assert.Equal(t, true, pd.InputDescriptors[0].Constraints.Fields[1].Filter["const"])

	anyFormat := PresentationDefinition{ID: "pd", InputDescriptors: []InputDescriptor{{ID: "d"}}}
	assert.Nil(t, anyFormat.AcceptedFormats(anyFormat.InputDescriptors[0]))
	assert.True(t, anyFormat.Accepts(anyFormat.InputDescriptors[0], "anything"))
}

func TestPresentationDefinitionIsValid(t *testing.T) {
	var nilDefinition *PresentationDefinition
	assert.ErrorContains(t, nilDefinition.IsValid(), "empty")

	assert.Error(t, (&PresentationDefinition{ID: "pd"}).IsValid())

	valid := &PresentationDefinition{ID: "pd", InputDescriptors: []InputDescriptor{{
		ID:          "d",
		Constraints: Constraints{Fields: []Field{{Path: []string{"$.age"}, Filter: Filter{"type": "integer"}}}},
	}}}
	assert.NoError(t, valid.IsValid())

	noPath := PresentationDefinition{ID: "pd", InputDescriptors: []InputDescriptor{{
		ID:          "d",
		Constraints: Constraints{Fields: []Field{{Name: "no path"}}},
	}}}
	assert.Error(t, noPath.IsValid())

	badFilter := PresentationDefinition{ID: "pd", InputDescriptors: []InputDescriptor{{
		ID:          "d",
		Constraints: Constraints{Fields: []Field{{Path: []string{"$.age"}, Filter: Filter{"type": 42}}}},
	}}}
	assert.ErrorContains(t, badFilter.IsValid(), "invalid filter")

	duplicate := PresentationDefinition{ID: "pd", InputDescriptors: []InputDescriptor{{ID: "d"}, {ID: "d"}}}
	assert.ErrorContains(t, duplicate.IsValid(), "duplicate input descriptor")
}
