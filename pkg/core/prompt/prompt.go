// Package prompt holds the prompt library used for LLM extraction calls.
// Prompts are JSON documents embedded in the binary and may be overridden
// from a directory at startup without a rebuild.
package prompt

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID               string           `json:"id"`                   // Unique identifier (e.g., "extraction.fund_portfolio")
	Name             string           `json:"name"`                 // Human-readable name
	Category         string           `json:"category"`             // Category (extraction, ...)
	Description      string           `json:"description"`          // Description of prompt purpose
	SystemPrompt     string           `json:"system_prompt"`        // The system prompt content
	UserPromptTmpl   string           `json:"user_prompt_template"` // Go template for the instruction block
	ResponseSchemaID string           `json:"response_schema_ref"`  // ID of the extraction contract the reply must follow
	Variables        []PromptVariable `json:"variables"`            // Variables used in template
	Version          string           `json:"version"`              // Version for tracking changes
}

// PromptVariable defines a variable used in a prompt template
type PromptVariable struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, int, float, array, object
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default"`
}

// PromptExecutionContext holds runtime values for prompt execution
type PromptExecutionContext struct {
	Variables map[string]interface{}
}

// NewContext creates a new execution context
func NewContext() *PromptExecutionContext {
	return &PromptExecutionContext{
		Variables: make(map[string]interface{}),
	}
}

// Set adds a variable to the context
func (c *PromptExecutionContext) Set(key string, value interface{}) *PromptExecutionContext {
	c.Variables[key] = value
	return c
}

// Missing returns the names of required variables that have no value and no default.
func (c *PromptExecutionContext) Missing(pt *PromptTemplate) []string {
	var missing []string
	for _, v := range pt.Variables {
		if !v.Required {
			continue
		}
		if _, ok := c.Variables[v.Name]; ok {
			continue
		}
		if v.Default != "" {
			c.Variables[v.Name] = v.Default
			continue
		}
		missing = append(missing, v.Name)
	}
	return missing
}
