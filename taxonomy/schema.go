package taxonomy

// Schema renders categories as a strict JSON Schema object: one array
// property per category, items restricted to the category's choices.
func Schema(cats []Category) map[string]any {
	props := make(map[string]any, len(cats))
	required := make([]string, 0, len(cats))
	for _, c := range cats {
		prop := map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string", "enum": c.Choices()},
			"uniqueItems": true,
		}
		if c.Hint != "" {
			prop["description"] = c.Hint
		}
		props[c.Name] = prop
		if c.Required {
			required = append(required, c.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
