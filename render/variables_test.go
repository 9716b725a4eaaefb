package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	finalize "github.com/goliatone/go-finalize"
)

func TestVariableRendererSubstitutes(t *testing.T) {
	r := NewVariableRenderer(map[string]string{
		"workflow.variables.env": "dev",
		"app.name":               "checkout",
		"empty":                  "",
	})

	cases := []struct {
		expr string
		want string
	}{
		{"plain", "plain"},
		{"", ""},
		{"${workflow.variables.env}", "dev"},
		{"${ workflow.variables.env }", "dev"},
		{"${app.name}-${workflow.variables.env}", "checkout-dev"},
		{"${empty}", ""},
		{"${missing}", "${missing}"},
		{"x-${missing}-${app.name}", "x-${missing}-checkout"},
	}
	for _, tc := range cases {
		got, ok := r.Render(tc.expr)
		assert.True(t, ok, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestNilRendererReportsNoValue(t *testing.T) {
	var r *VariableRenderer
	_, ok := r.Render("x")
	assert.False(t, ok)
}

func TestVariablesFromExecution(t *testing.T) {
	exec := &finalize.WorkflowExecution{
		ID:          "exec-1",
		AppID:       "app-1",
		AppName:     "checkout",
		Name:        "deploy",
		EnvType:     finalize.EnvironmentNonProd,
		TriggeredBy: &finalize.EmbeddedUser{UUID: "u1", Name: "Ada", Email: "ada@example.com"},
		Variables:   map[string]string{"env": "dev"},
	}
	account := &finalize.Account{ID: "acct-1", Name: "Acme", Defaults: map[string]string{"owner": "user1"}}

	vars := Variables(exec, account)
	assert.Equal(t, "dev", vars["workflow.variables.env"])
	assert.Equal(t, "user1", vars["account.defaults.owner"])
	assert.Equal(t, "checkout", vars["app.name"])
	assert.Equal(t, "app-1", vars["app.id"])
	assert.Equal(t, "NON_PROD", vars["env.type"])
	assert.Equal(t, "deploy", vars["workflow.name"])
	assert.Equal(t, "Ada", vars["deployment.triggeredBy.name"])
	assert.Equal(t, "ada@example.com", vars["deployment.triggeredBy.email"])

	r := ForExecution(exec, account)
	got, ok := r.Render("${account.defaults.owner}")
	require.True(t, ok)
	assert.Equal(t, "user1", got)
	assert.Contains(t, r.Keys(), "workflow.variables.env")
}

func TestVariablesWithoutTrigger(t *testing.T) {
	vars := Variables(&finalize.WorkflowExecution{AppID: "app-1"}, nil)
	_, ok := vars["deployment.triggeredBy.name"]
	assert.False(t, ok)
	assert.Equal(t, map[string]string{"app.id": "app-1"}, vars)
	assert.Empty(t, Variables(nil, nil))
}
