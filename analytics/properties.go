package analytics

import (
	finalize "github.com/goliatone/go-finalize"
)

// Property keys attached to the deployment event.
const (
	PropExecutionID  = "execution_id"
	PropAppID        = "app_id"
	PropAppName      = "app_name"
	PropWorkflowID   = "workflow_id"
	PropWorkflowName = "workflow_name"
	PropWorkflowType = "workflow_type"
	PropEnvType      = "env_type"
	PropStatus       = "status"
	PropServiceIDs   = "service_ids"
	PropServiceCount = "service_count"
	PropAccountID    = "account_id"
	PropAccountName  = "account_name"
	PropCompanyName  = "company_name"
	PropLicenseType  = "license_type"
	PropTriggered    = "triggered_by_user"
	PropDurationMS   = "duration_ms"
	PropTagCount     = "tag_count"
)

// BuildProperties flattens an execution and its account into event
// properties. Unknown optional fields are omitted, never reported as errors.
func BuildProperties(exec *finalize.WorkflowExecution, account *finalize.Account) map[string]any {
	props := make(map[string]any)
	if exec != nil {
		props[PropExecutionID] = exec.ID
		props[PropAppID] = exec.AppID
		putString(props, PropAppName, exec.AppName)
		putString(props, PropWorkflowID, exec.WorkflowID)
		putString(props, PropWorkflowName, exec.Name)
		putString(props, PropEnvType, string(exec.EnvType))
		putString(props, PropStatus, string(exec.Status))
		if exec.WorkflowType != nil {
			props[PropWorkflowType] = string(*exec.WorkflowType)
		}
		if exec.ServiceIDs != nil {
			props[PropServiceIDs] = append([]string(nil), exec.ServiceIDs...)
			props[PropServiceCount] = len(exec.ServiceIDs)
		}
		props[PropTriggered] = exec.TriggeredBy != nil
		if !exec.StartedAt.IsZero() && exec.EndedAt.After(exec.StartedAt) {
			props[PropDurationMS] = exec.EndedAt.Sub(exec.StartedAt).Milliseconds()
		}
		props[PropTagCount] = len(exec.Tags)
	}
	if account != nil {
		props[PropAccountID] = account.ID
		putString(props, PropAccountName, account.Name)
		putString(props, PropCompanyName, account.CompanyName)
		putString(props, PropLicenseType, account.LicenseType)
	}
	return props
}

func putString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}
