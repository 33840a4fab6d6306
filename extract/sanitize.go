package extract

// SanitizeSchema rewrites a field schema into the subset the extraction
// service accepts. The service rejects the const keyword outright, and allows
// enum only on string-typed schemas; violating either returns a 400.
func SanitizeSchema(schema interface{}) interface{} {
	switch s := schema.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(s))
		for k, v := range s {
			out[k] = v
		}

		if constVal, ok := out["const"]; ok {
			typ, _ := out["type"].(string)
			if _, isStr := constVal.(string); isStr || typ == "string" {
				out["enum"] = []interface{}{constVal}
			}
			delete(out, "const")
		}

		if enum, ok := out["enum"].([]interface{}); ok {
			typ, _ := out["type"].(string)
			if typ != "string" && len(enum) > 0 {
				if _, isStr := enum[0].(string); !isStr {
					delete(out, "enum")
				}
			}
		}

		for k, v := range out {
			out[k] = SanitizeSchema(v)
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(s))
		for i, v := range s {
			out[i] = SanitizeSchema(v)
		}
		return out

	default:
		return schema
	}
}
