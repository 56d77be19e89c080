package tools

import (
	"testing"

	"github.com/sablehq/sable/internal/llm"
)

func TestRegisterBuiltins(t *testing.T) {
	registry := llm.NewToolRegistry()
	if err := RegisterBuiltins(registry, Options{Prompter: &fakePrompter{}}); err != nil {
		t.Fatal(err)
	}

	for _, name := range AllToolNames() {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("builtin %s not registered", name)
		}
	}
}

func TestRegisterBuiltins_NoPrompterSkipsAskUser(t *testing.T) {
	registry := llm.NewToolRegistry()
	if err := RegisterBuiltins(registry, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.Get(AskUserToolName); ok {
		t.Error("ask_user registered without a prompter")
	}
}

func TestRegisterBuiltins_SchemasValidate(t *testing.T) {
	registry := llm.NewToolRegistry()
	if err := RegisterBuiltins(registry, Options{Prompter: &fakePrompter{}}); err != nil {
		t.Fatal(err)
	}
	// Every advertised schema is an object schema with a description.
	for _, spec := range registry.AllSpecs() {
		if spec.Schema["type"] != "object" {
			t.Errorf("%s: schema type = %v", spec.Name, spec.Schema["type"])
		}
		if spec.Description == "" {
			t.Errorf("%s: empty description", spec.Name)
		}
	}
}
