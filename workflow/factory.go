package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewFullStackAppWorkflow assembles the canonical application generation
// pipeline: requirements analysis and architecture planning, template
// selection and code generation, then testing and deployment. Each task
// depends on its predecessor, task IDs are prefixed with the workflow ID,
// and appType defaults to "crud".
func NewFullStackAppWorkflow(projectID string, requirements Payload, appType string) (*Workflow, error) {
	if appType == "" {
		appType = "crud"
	}

	workflowID := uuid.NewString()
	taskID := func(suffix string) string { return fmt.Sprintf("%s-%s", workflowID, suffix) }

	analysisStage := NewStage("analysis_and_planning", []*Task{
		NewTask(taskID("req-analysis"), "Analyze Requirements", CapabilityRequirementAnalysis,
			WithInput(Payload{"requirements": requirements}),
			WithTimeout(180*time.Second),
		),
		NewTask(taskID("arch-planning"), "Plan Architecture", CapabilityArchitecturePlanning,
			WithInput(Payload{"app_type": appType}),
			WithDependsOn(taskID("req-analysis")),
			WithTimeout(300*time.Second),
		),
	})

	generationStage := NewStage("generation", []*Task{
		NewTask(taskID("template-selection"), "Select Template", CapabilityTemplateSelection,
			WithInput(Payload{"app_type": appType}),
			WithDependsOn(taskID("arch-planning")),
			WithTimeout(120*time.Second),
		),
		NewTask(taskID("code-generation"), "Generate Code", CapabilityCodeGeneration,
			WithDependsOn(taskID("template-selection")),
			WithTimeout(600*time.Second),
		),
	})

	deploymentStage := NewStage("testing_and_deployment", []*Task{
		NewTask(taskID("testing"), "Run Tests", CapabilityTesting,
			WithDependsOn(taskID("code-generation")),
			WithTimeout(300*time.Second),
		),
		NewTask(taskID("deployment"), "Deploy Application", CapabilityDeployment,
			WithDependsOn(taskID("testing")),
			WithTimeout(600*time.Second),
		),
	})

	name := fmt.Sprintf("Generate %s Application", titleCase(appType))

	return New(name, projectID, []*Stage{analysisStage, generationStage, deploymentStage},
		WithID(workflowID),
		WithMetadata(Payload{"app_type": appType, "requirements": requirements}),
	)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
