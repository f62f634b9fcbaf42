package manager

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const domainEntrySchema = `{
  "type": "object",
  "required": ["score", "conf_path"],
  "properties": {
    "score": {"type": "integer"},
    "conf_path": {"type": "string", "minLength": 1}
  }
}`

const policySchema = `{
  "type": "object",
  "required": ["trigger"],
  "properties": {
    "trigger": {
      "type": "object",
      "required": ["intent"],
      "properties": {
        "intent": {"type": "string"},
        "slots": {"type": "array", "items": {"type": "string"}},
        "state": {"type": "string"}
      }
    },
    "params": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type", "value"],
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"},
          "value": {"type": "string"},
          "required": {"type": "boolean"},
          "default": {"type": "string"}
        }
      }
    },
    "output": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["result"],
        "properties": {
          "assertion": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["type", "value"],
              "properties": {
                "type": {"type": "string"},
                "value": {"type": "string"}
              }
            }
          },
          "session": {
            "type": "object",
            "properties": {
              "state": {"type": "string"},
              "context": {"type": "object", "additionalProperties": {"type": "string"}}
            }
          },
          "meta": {"type": "object", "additionalProperties": {"type": "string"}},
          "result": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["type", "value"],
              "properties": {
                "type": {"type": "string"},
                "value": {
                  "oneOf": [
                    {"type": "string"},
                    {"type": "array", "items": {"type": "string"}}
                  ]
                },
                "extra": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

type schemas struct {
	domainEntry *jsonschema.Schema
	policy      *jsonschema.Schema
}

var (
	schemasOnce sync.Once
	compiled    *schemas
	compileErr  error
)

// loadSchemas compiles the embedded schemas once per process.
func loadSchemas() (*schemas, error) {
	schemasOnce.Do(func() {
		domain, err := compileSchema("domain_entry.json", domainEntrySchema)
		if err != nil {
			compileErr = err
			return
		}
		policy, err := compileSchema("policy.json", policySchema)
		if err != nil {
			compileErr = err
			return
		}
		compiled = &schemas{domainEntry: domain, policy: policy}
	})
	return compiled, compileErr
}

func compileSchema(name, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(src)))
	if err != nil {
		return nil, fmt.Errorf("invalid embedded schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return sch, nil
}

// validateInstance checks raw JSON against sch.
func validateInstance(sch *jsonschema.Schema, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
