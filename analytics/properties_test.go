package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	finalize "github.com/goliatone/go-finalize"
)

func TestBuildPropertiesOmitsUnknownFields(t *testing.T) {
	props := BuildProperties(&finalize.WorkflowExecution{ID: "exec-1", AppID: "app-1"}, nil)

	assert.Equal(t, "exec-1", props[PropExecutionID])
	assert.NotContains(t, props, PropWorkflowType)
	assert.NotContains(t, props, PropServiceIDs)
	assert.NotContains(t, props, PropServiceCount)
	assert.NotContains(t, props, PropDurationMS)
	assert.Equal(t, false, props[PropTriggered])
}

func TestBuildPropertiesFull(t *testing.T) {
	orchestration := finalize.WorkflowOrchestration
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exec := &finalize.WorkflowExecution{
		ID:           "exec-1",
		AppID:        "app-1",
		AppName:      "checkout",
		Name:         "deploy",
		EnvType:      finalize.EnvironmentProd,
		Status:       finalize.StatusSuccess,
		WorkflowType: &orchestration,
		TriggeredBy:  &finalize.EmbeddedUser{UUID: "u1"},
		ServiceIDs:   []string{"svc-a"},
		Tags:         []finalize.ResolvedTag{{Name: "env", Value: "dev"}},
		StartedAt:    start,
		EndedAt:      start.Add(90 * time.Second),
	}
	account := &finalize.Account{ID: "acct-1", Name: "Acme", CompanyName: "Acme Inc", LicenseType: "PAID"}

	props := BuildProperties(exec, account)
	assert.Equal(t, "ORCHESTRATION", props[PropWorkflowType])
	assert.Equal(t, []string{"svc-a"}, props[PropServiceIDs])
	assert.Equal(t, 1, props[PropServiceCount])
	assert.Equal(t, int64(90000), props[PropDurationMS])
	assert.Equal(t, true, props[PropTriggered])
	assert.Equal(t, "PROD", props[PropEnvType])
	assert.Equal(t, "Acme Inc", props[PropCompanyName])
	assert.Equal(t, 1, props[PropTagCount])

	exec.ServiceIDs[0] = "mutated"
	assert.Equal(t, []string{"svc-a"}, props[PropServiceIDs])
}

func TestBuildPropertiesEmptyServiceSet(t *testing.T) {
	props := BuildProperties(&finalize.WorkflowExecution{ServiceIDs: []string{}}, nil)
	assert.Equal(t, 0, props[PropServiceCount])
}
