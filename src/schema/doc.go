// Package schema builds the JSON Schema values used for tool parameters and
// for the strict monadic response format.
//
//	userSchema := schema.Object(map[string]*jsonschema.Schema{
//		"name": schema.String("The user's name"),
//		"age":  schema.Int("The user's age", 0),
//	}, []string{"name"})
//
// Schemas loaded from configuration files go through Parse, and vendors
// serialize them with Marshal.
package schema
