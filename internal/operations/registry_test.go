package operations

import (
	"encoding/json"
	"testing"
)

func TestDescriptors_ClosedSet(t *testing.T) {
	want := []string{AddTask, ListTasks, CompleteTask, UpdateTask, DeleteTask}
	got := Descriptors()
	if len(got) != len(want) {
		t.Fatalf("got %d descriptors, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("descriptor[%d] = %q, want %q", i, d.Name, want[i])
		}
		if d.Description == "" {
			t.Errorf("%s has no description", d.Name)
		}
		if d.Schema.Type != "object" || d.Schema.AdditionalProperties {
			t.Errorf("%s schema must be a closed object", d.Name)
		}
		for _, r := range d.Schema.Required {
			if _, ok := d.Schema.Properties[r]; !ok {
				t.Errorf("%s requires undeclared property %q", d.Name, r)
			}
		}
		if _, ok := d.Schema.Properties["owner"]; ok {
			t.Errorf("%s exposes an owner argument", d.Name)
		}
	}
}

func TestSchemaJSON(t *testing.T) {
	d, ok := Lookup(AddTask)
	if !ok {
		t.Fatal("add_task not registered")
	}
	b, err := json.Marshal(d.Schema)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", doc["additionalProperties"])
	}
	title := doc["properties"].(map[string]any)["title"].(map[string]any)
	if title["maxLength"] != float64(200) || title["minLength"] != float64(1) {
		t.Errorf("title bounds = %v", title)
	}
	if _, ok := title["Trim"]; ok {
		t.Error("internal Trim flag leaked into schema")
	}

	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup found an unregistered operation")
	}
}
