package testit

import "github.com/google/uuid"

// Wire types of the Test IT public API.

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

type projectModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type sectionModel struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parentId"`
}

type createSectionRequest struct {
	Name               string      `json:"name"`
	ParentID           uuid.UUID   `json:"parentId"`
	ProjectID          string      `json:"projectId"`
	PreconditionSteps  []stepModel `json:"preconditionSteps"`
	PostconditionSteps []stepModel `json:"postconditionSteps"`
	Attachments        []idModel   `json:"attachments"`
}

type attributeModel struct {
	ID         *uuid.UUID    `json:"id,omitempty"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	IsEnabled  bool          `json:"isEnabled"`
	IsRequired bool          `json:"isRequired"`
	IsGlobal   bool          `json:"isGlobal"`
	Options    []optionModel `json:"options"`
}

type optionModel struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	Value     string     `json:"value"`
	IsDefault bool       `json:"isDefault"`
}

type stepModel struct {
	Action     string     `json:"action"`
	Expected   string     `json:"expected"`
	TestData   string     `json:"testData"`
	Comments   string     `json:"comments"`
	WorkItemID *uuid.UUID `json:"workItemId,omitempty"`
}

type idModel struct {
	ID uuid.UUID `json:"id"`
}

type tagModel struct {
	Name string `json:"name"`
}

type linkModel struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type parameterRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type iterationModel struct {
	Parameters []idModel `json:"parameters"`
}

type workItemRequest struct {
	EntityTypeName     string           `json:"entityTypeName"`
	ProjectID          string           `json:"projectId"`
	SectionID          uuid.UUID        `json:"sectionId"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	State              string           `json:"state"`
	Priority           string           `json:"priority"`
	Duration           int64            `json:"duration"`
	Steps              []stepModel      `json:"steps"`
	PreconditionSteps  []stepModel      `json:"preconditionSteps"`
	PostconditionSteps []stepModel      `json:"postconditionSteps"`
	Attributes         map[string]any   `json:"attributes"`
	Tags               []tagModel       `json:"tags"`
	Links              []linkModel      `json:"links"`
	Attachments        []idModel        `json:"attachments"`
	Iterations         []iterationModel `json:"iterations"`
}
