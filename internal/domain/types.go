package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AttributeType is the value kind of a custom attribute.
type AttributeType string

const (
	AttributeString          AttributeType = "string"
	AttributeOptions         AttributeType = "options"
	AttributeMultipleOptions AttributeType = "multipleOptions"
	AttributeDatetime        AttributeType = "datetime"
	AttributeCheckbox        AttributeType = "checkbox"
)

// IsOptionType reports whether values of this type refer to attribute options.
func (t AttributeType) IsOptionType() bool {
	return t == AttributeOptions || t == AttributeMultipleOptions
}

// Valid reports whether t is one of the known attribute types.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeString, AttributeOptions, AttributeMultipleOptions, AttributeDatetime, AttributeCheckbox:
		return true
	}
	return false
}

// Root is the project manifest stored as main.json.
type Root struct {
	ProjectName string      `json:"projectName"`
	Sections    []Section   `json:"sections"`    // top-level only, children nested
	Attributes  []Attribute `json:"attributes"`
	TestCases   []uuid.UUID `json:"testCases"`   // bodies live in <id>/testcase.json
	SharedSteps []uuid.UUID `json:"sharedSteps"` // bodies live in <id>/sharedstep.json
}

// Section is a folder/suite node. It owns its children and its
// precondition/postcondition steps.
type Section struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	PreconditionSteps  []Step    `json:"preconditionSteps"`
	PostconditionSteps []Step    `json:"postconditionSteps"`
	Sections           []Section `json:"sections"`
}

// AttributeOption is one selectable value of an option-typed attribute.
type AttributeOption struct {
	ID        uuid.UUID `json:"id"`
	Value     string    `json:"value"`
	IsDefault bool      `json:"isDefault"`
}

// Attribute is a project-level custom field definition.
type Attribute struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Type       AttributeType     `json:"type"`
	IsRequired bool              `json:"isRequired"`
	IsActive   bool              `json:"isActive"`
	Options    []AttributeOption `json:"options"`
}

// Validate checks the options/type invariant.
func (a Attribute) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("attribute %q: unknown type %q", a.Name, a.Type)
	}
	if a.Type.IsOptionType() && len(a.Options) == 0 {
		return fmt.Errorf("attribute %q: type %s requires options", a.Name, a.Type)
	}
	if !a.Type.IsOptionType() && len(a.Options) > 0 {
		return fmt.Errorf("attribute %q: type %s must not have options", a.Name, a.Type)
	}
	return nil
}

// OptionByValue returns the option whose value equals v.
func (a Attribute) OptionByValue(v string) (AttributeOption, bool) {
	for _, o := range a.Options {
		if o.Value == v {
			return o, true
		}
	}
	return AttributeOption{}, false
}

// OptionByID returns the option with the given id.
func (a Attribute) OptionByID(id uuid.UUID) (AttributeOption, bool) {
	for _, o := range a.Options {
		if o.ID == id {
			return o, true
		}
	}
	return AttributeOption{}, false
}

// CaseAttribute is a non-owning reference to an Attribute plus the value a
// test case holds for it. Value is a string, an option id string, a list of
// option id strings or a bool, depending on the attribute type.
type CaseAttribute struct {
	ID    uuid.UUID `json:"id"`
	Value any       `json:"value"`
}

// Step is a single action/expected pair. When SharedStepID is set the text
// fields are empty and the referenced SharedStep supplies the content.
type Step struct {
	Action              string     `json:"action"`
	Expected            string     `json:"expected"`
	TestData            string     `json:"testData"`
	ActionAttachments   []string   `json:"actionAttachments"`
	ExpectedAttachments []string   `json:"expectedAttachments"`
	TestDataAttachments []string   `json:"testDataAttachments"`
	SharedStepID        *uuid.UUID `json:"sharedStepId,omitempty"`
}

// IsSharedReference reports whether the step only points at a shared step.
func (s Step) IsSharedReference() bool {
	return s.SharedStepID != nil
}

// Link is an external reference attached to a test case.
type Link struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Parameter is a single name/value pair of an iteration.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Iteration is one parameter set a test case runs with.
type Iteration struct {
	Parameters []Parameter `json:"parameters"`
}

// TestCase is the normalized test case stored as <id>/testcase.json.
type TestCase struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	State              string          `json:"state"`
	Priority           string          `json:"priority"`
	SectionID          uuid.UUID       `json:"sectionId"`
	Steps              []Step          `json:"steps"`
	PreconditionSteps  []Step          `json:"preconditionSteps"`
	PostconditionSteps []Step          `json:"postconditionSteps"`
	Attributes         []CaseAttribute `json:"attributes"`
	Tags               []string        `json:"tags"`
	Links              []Link          `json:"links"`
	Attachments        []string        `json:"attachments"`
	Iterations         []Iteration     `json:"iterations"`
	Duration           int64           `json:"duration"`
}

// SharedStep is a reusable step group stored as <id>/sharedstep.json.
type SharedStep struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	State       string          `json:"state"`
	Priority    string          `json:"priority"`
	SectionID   uuid.UUID       `json:"sectionId"`
	Steps       []Step          `json:"steps"`
	Attributes  []CaseAttribute `json:"attributes"`
	Tags        []string        `json:"tags"`
	Links       []Link          `json:"links"`
	Attachments []string        `json:"attachments"`
}

// AttachmentRef names a file to transfer. On export URL is the vendor
// location to download from; on import it is the local path.
type AttachmentRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
