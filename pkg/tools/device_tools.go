package tools

import (
	"context"
	"strings"
)

func validPseudofilePath(path string) bool {
	for _, root := range pseudofileRoots {
		if strings.HasPrefix(path, root) && len(path) > len(root) {
			return true
		}
	}
	return false
}

const pseudofilePathError = "Pseudofile path must be in /sys, /dev, or /proc"

// addDeviceModelTool inserts a pseudofiles entry.
type addDeviceModelTool struct{ r *Registry }

func (t *addDeviceModelTool) Name() string { return ToolAddDeviceModel }

func (t *addDeviceModelTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAddDeviceModel,
		Description: "Model a missing device, sysfs or procfs file the guest tried to open",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {Type: "string", Description: "Absolute path under /dev, /sys or /proc"},
				"name":     {Type: "string", Description: "MTD partition name, only for /dev/mtd* paths"},
				"reason":   reasonProperty(),
			},
			Required: []string{"filepath", "reason"},
		},
	}
}

func (t *addDeviceModelTool) PromptDocumentation() string {
	return `- **add_device_model** - Add a pseudofile entry for a missing device
  - Parameters:
    - filepath (string, REQUIRED): absolute path starting with /dev/, /sys/ or /proc/
    - name (string, optional): partition name, only used for /dev/mtd* paths
    - reason (string, REQUIRED): which failure this addresses
  - Fails if the pseudofile already exists`
}

func (t *addDeviceModelTool) Exec(_ context.Context, args map[string]any) Result {
	path, _ := requireString(args, "filepath")
	if !validPseudofilePath(path) {
		return failure(pseudofilePathError)
	}
	if t.r.doc.Has(sectionPseudofiles, path) {
		return failure("Pseudofile %s already exists", path)
	}

	entry := map[string]any{}
	if name := optionalString(args, "name"); name != "" && strings.HasPrefix(path, "/dev/mtd") {
		entry["name"] = name
	}
	if err := t.r.doc.SetAt([]string{sectionPseudofiles, path}, entry); err != nil {
		return failure("Failed to add pseudofile %s: %v", path, err)
	}
	if err := t.r.save(); err != nil {
		return saveFailure(err)
	}
	return success(map[string]any{"path": sectionPseudofiles + "." + path, "new": entry}, "Added pseudofile %s", path)
}

// removeDeviceModelTool deletes a pseudofiles entry.
type removeDeviceModelTool struct{ r *Registry }

func (t *removeDeviceModelTool) Name() string { return ToolRemoveDeviceModel }

func (t *removeDeviceModelTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolRemoveDeviceModel,
		Description: "Remove a pseudofile entry",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {Type: "string", Description: "Pseudofile path to remove"},
				"reason":   reasonProperty(),
			},
			Required: []string{"filepath", "reason"},
		},
	}
}

func (t *removeDeviceModelTool) PromptDocumentation() string {
	return `- **remove_device_model** - Remove a pseudofile entry
  - Parameters:
    - filepath (string, REQUIRED): existing pseudofile path
    - reason (string, REQUIRED): why the model is wrong`
}

func (t *removeDeviceModelTool) Exec(_ context.Context, args map[string]any) Result {
	path, _ := requireString(args, "filepath")
	old, ok := t.r.doc.GetAt(sectionPseudofiles, path)
	if !ok || !t.r.doc.RemoveAt(sectionPseudofiles, path) {
		return failure("Pseudofile %s not found", path)
	}
	if err := t.r.save(); err != nil {
		return saveFailure(err)
	}
	return success(map[string]any{"path": sectionPseudofiles + "." + path, "old": old}, "Removed pseudofile %s", path)
}

// setReadBehaviorTool sets how reads of an existing pseudofile are answered.
type setReadBehaviorTool struct{ r *Registry }

func (t *setReadBehaviorTool) Name() string { return ToolSetReadBehavior }

func (t *setReadBehaviorTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSetReadBehavior,
		Description: "Set the read behavior of an existing pseudofile",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {Type: "string", Description: "Existing pseudofile path"},
				"model":    {Type: "string", Description: "Read model", Enum: []string{ReadModelReturnZero, ReadModelConstBuf}},
				"value":    {Type: "string", Description: "Buffer contents, required for const_buf"},
				"reason":   reasonProperty(),
			},
			Required: []string{"filepath", "model", "reason"},
		},
	}
}

func (t *setReadBehaviorTool) PromptDocumentation() string {
	return `- **set_read_behavior** - Set how reads of a pseudofile are answered
  - Parameters:
    - filepath (string, REQUIRED): pseudofile that already exists (add it with add_device_model first)
    - model (string, REQUIRED): "return_zero" or "const_buf"
    - value (string, optional): buffer contents, required when model is const_buf
    - reason (string, REQUIRED): which failure this addresses`
}

func (t *setReadBehaviorTool) Exec(_ context.Context, args map[string]any) Result {
	path, _ := requireString(args, "filepath")
	model, _ := requireString(args, "model")
	value := optionalString(args, "value")

	if model != ReadModelReturnZero && model != ReadModelConstBuf {
		return failure("Model must be 'return_zero' or 'const_buf'")
	}
	if model == ReadModelConstBuf && value == "" {
		return failure("Model const_buf requires a value")
	}
	old, ok := t.r.doc.GetAt(sectionPseudofiles, path)
	if !ok {
		return failure("Pseudofile %s not found. Add it with add_device_model first", path)
	}

	base := []string{sectionPseudofiles, path}
	if err := t.r.doc.SetAt(append(base, "read_model"), model); err != nil {
		return failure("Failed to set read behavior for %s: %v", path, err)
	}
	if model == ReadModelConstBuf {
		if err := t.r.doc.SetAt(append(base, "read_value"), value); err != nil {
			return failure("Failed to set read behavior for %s: %v", path, err)
		}
	} else {
		t.r.doc.RemoveAt(append(base, "read_value")...)
	}
	if err := t.r.save(); err != nil {
		return saveFailure(err)
	}

	updated, _ := t.r.doc.GetAt(base...)
	return success(map[string]any{"path": sectionPseudofiles + "." + path, "old": old, "new": updated},
		"Set read behavior of %s to %s", path, model)
}
