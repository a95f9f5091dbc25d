package oid4vp

import (
	"fmt"

	"github.com/google/uuid"
)

// https://identity.foundation/presentation-exchange/#presentation-submission
type PresentationSubmission struct {
	ID            string                 `json:"id"`
	DefinitionID  string                 `json:"definition_id"`
	DescriptorMap []SubmissionDescriptor `json:"descriptor_map"`
}

type SubmissionDescriptor struct {
	ID         string                `json:"id"`
	Format     string                `json:"format"`
	Path       string                `json:"path"`
	PathNested *SubmissionDescriptor `json:"path_nested,omitempty"`
}

// NewPresentationSubmission creates an empty submission for the definition.
func NewPresentationSubmission(definitionID string) *PresentationSubmission {
	return &PresentationSubmission{
		ID:            uuid.NewString(),
		DefinitionID:  definitionID,
		DescriptorMap: make([]SubmissionDescriptor, 0),
	}
}

// VPTokenPath is the JSONPath of the i-th presentation in a vp_token carrying total presentations.
func VPTokenPath(i, total int) string {
	if total == 1 {
		return "$"
	}
	return fmt.Sprintf("$[%d]", i)
}
