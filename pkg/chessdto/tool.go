package chessdto

// ToolSpec describes one command in the shape language-model tool calling
// expects: a name, a description and a JSON schema for the arguments.
type ToolSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}
