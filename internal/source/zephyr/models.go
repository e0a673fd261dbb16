package zephyr

// Wire types of the Zephyr Scale Server and Jira REST APIs. Only the fields
// the exporter reads are declared.

type jiraProject struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type customField struct {
	ID       int                 `json:"id"`
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Required bool                `json:"required"`
	Archived bool                `json:"archived"`
	Options  []customFieldOption `json:"options"`
}

type customFieldOption struct {
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

type testCase struct {
	Key           string         `json:"key"`
	Name          string         `json:"name"`
	Objective     string         `json:"objective"`
	Precondition  string         `json:"precondition"`
	Folder        string         `json:"folder"`
	Status        string         `json:"status"`
	Priority      string         `json:"priority"`
	Component     string         `json:"component"`
	Owner         string         `json:"owner"`
	Labels        []string       `json:"labels"`
	IssueLinks    []string       `json:"issueLinks"`
	EstimatedTime int64          `json:"estimatedTime"`
	CustomFields  map[string]any `json:"customFields"`
	TestScript    *testScript    `json:"testScript"`
	Parameters    *parameters    `json:"parameters"`
}

type testScript struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Steps []step `json:"steps"`
}

type step struct {
	Index          int    `json:"index"`
	Description    string `json:"description"`
	TestData       string `json:"testData"`
	ExpectedResult string `json:"expectedResult"`
	TestCaseKey    string `json:"testCaseKey"`
}

type parameters struct {
	Variables []variable       `json:"variables"`
	Entries   []map[string]any `json:"entries"`
}

type variable struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type attachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	FileSize int64  `json:"fileSize"`
}
