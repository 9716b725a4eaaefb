// Package render provides the default expression renderer used to resolve
// tag definitions: ${path} placeholders are replaced from a flat variable map.
package render

import (
	"regexp"
	"sort"
	"strings"

	finalize "github.com/goliatone/go-finalize"
)

var placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// Variable namespaces exposed to tag expressions.
const (
	WorkflowVariablesPrefix = "workflow.variables."
	AccountDefaultsPrefix   = "account.defaults."
)

// VariableRenderer substitutes ${path} placeholders. Placeholders without a
// matching variable are left in place so callers can detect them.
type VariableRenderer struct {
	vars map[string]string
}

var _ finalize.ExpressionRenderer = (*VariableRenderer)(nil)

// NewVariableRenderer builds a renderer over a copy of vars.
func NewVariableRenderer(vars map[string]string) *VariableRenderer {
	cp := make(map[string]string, len(vars))
	for k, v := range vars {
		cp[strings.TrimSpace(k)] = v
	}
	return &VariableRenderer{vars: cp}
}

// ForExecution builds a renderer with the variables of exec and account.
func ForExecution(exec *finalize.WorkflowExecution, account *finalize.Account) *VariableRenderer {
	return NewVariableRenderer(Variables(exec, account))
}

func (r *VariableRenderer) Render(expr string) (string, bool) {
	if r == nil {
		return "", false
	}
	if !strings.Contains(expr, "${") {
		return expr, true
	}
	return placeholder.ReplaceAllStringFunc(expr, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])
		if value, ok := r.vars[path]; ok {
			return value
		}
		return match
	}), true
}

// Lookup returns the value bound to path.
func (r *VariableRenderer) Lookup(path string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.vars[path]
	return v, ok
}

// Keys lists the bound variable paths in sorted order.
func (r *VariableRenderer) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.vars))
	for k := range r.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Variables flattens an execution and its account into renderer paths.
// Either argument may be nil.
func Variables(exec *finalize.WorkflowExecution, account *finalize.Account) map[string]string {
	vars := make(map[string]string)
	if account != nil {
		for k, v := range account.Defaults {
			vars[AccountDefaultsPrefix+k] = v
		}
		vars["account.id"] = account.ID
		if account.Name != "" {
			vars["account.name"] = account.Name
		}
	}
	if exec == nil {
		return vars
	}
	for k, v := range exec.Variables {
		vars[WorkflowVariablesPrefix+k] = v
	}
	vars["app.id"] = exec.AppID
	if exec.AppName != "" {
		vars["app.name"] = exec.AppName
	}
	if exec.Name != "" {
		vars["workflow.name"] = exec.Name
	}
	if exec.EnvType != "" {
		vars["env.type"] = string(exec.EnvType)
	}
	if exec.TriggeredBy != nil {
		vars["deployment.triggeredBy.name"] = exec.TriggeredBy.Name
		vars["deployment.triggeredBy.email"] = exec.TriggeredBy.Email
	}
	return vars
}
