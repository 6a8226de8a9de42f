// clawctl is a command line client for the ClawController board API.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
)

var (
	app       = kingpin.New("clawctl", "Command line client for the ClawController task board")
	serverURL = app.Flag("server", "Board API base URL").Default("http://localhost:5001").Envar("CLAW_SERVER_URL").String()
	apiKey    = app.Flag("api-key", "API key").Envar("CLAW_API_KEY").String()

	// Task commands
	taskCmd = app.Command("task", "Task commands")

	taskListCmd      = taskCmd.Command("list", "List tasks")
	taskListStatus   = taskListCmd.Flag("status", "Filter by status").String()
	taskListAssignee = taskListCmd.Flag("assignee", "Filter by assignee").String()

	taskCreateCmd      = taskCmd.Command("create", "Create a task")
	taskCreateTitle    = taskCreateCmd.Arg("title", "Task title").Required().String()
	taskCreateDesc     = taskCreateCmd.Flag("description", "Task description").String()
	taskCreatePriority = taskCreateCmd.Flag("priority", "NORMAL or URGENT").Default("NORMAL").String()
	taskCreateAssignee = taskCreateCmd.Flag("assignee", "Assignee agent ID").String()
	taskCreateTags     = taskCreateCmd.Flag("tag", "Tag (repeatable)").Strings()

	taskShowCmd = taskCmd.Command("show", "Show task details")
	taskShowID  = taskShowCmd.Arg("id", "Task ID").Required().String()

	taskStatusCmd    = taskCmd.Command("status", "Change task status")
	taskStatusID     = taskStatusCmd.Arg("id", "Task ID").Required().String()
	taskStatusTarget = taskStatusCmd.Arg("status", "Target status").Required().String()
	taskStatusActor  = taskStatusCmd.Flag("actor", "Acting identity").String()

	taskAssignCmd   = taskCmd.Command("assign", "Assign a task to an agent")
	taskAssignID    = taskAssignCmd.Arg("id", "Task ID").Required().String()
	taskAssignAgent = taskAssignCmd.Arg("agent", "Agent ID").Required().String()

	taskCompleteCmd   = taskCmd.Command("complete", "Send a task to review")
	taskCompleteID    = taskCompleteCmd.Arg("id", "Task ID").Required().String()
	taskCompleteActor = taskCompleteCmd.Flag("actor", "Acting identity").String()

	taskApproveCmd   = taskCmd.Command("approve", "Approve a task in review")
	taskApproveID    = taskApproveCmd.Arg("id", "Task ID").Required().String()
	taskApproveActor = taskApproveCmd.Flag("actor", "Acting identity").String()

	taskRejectCmd      = taskCmd.Command("reject", "Reject a task in review")
	taskRejectID       = taskRejectCmd.Arg("id", "Task ID").Required().String()
	taskRejectFeedback = taskRejectCmd.Arg("feedback", "Feedback for the assignee").Required().String()
	taskRejectActor    = taskRejectCmd.Flag("actor", "Acting identity").String()

	taskLogCmd     = taskCmd.Command("log", "Record an activity message on a task")
	taskLogID      = taskLogCmd.Arg("id", "Task ID").Required().String()
	taskLogMessage = taskLogCmd.Arg("message", "Activity message").Required().String()
	taskLogAgent   = taskLogCmd.Flag("agent", "Authoring agent ID").Required().String()

	// Agent commands
	agentCmd     = app.Command("agent", "Agent commands")
	agentListCmd = agentCmd.Command("list", "List agents with live status")

	// Recurring task commands
	recurringCmd     = app.Command("recurring", "Recurring task commands")
	recurringListCmd = recurringCmd.Command("list", "List recurring tasks")

	recurringTriggerCmd = recurringCmd.Command("trigger", "Trigger a recurring task now")
	recurringTriggerID  = recurringTriggerCmd.Arg("id", "Recurring task ID").Required().String()

	recurringPauseCmd = recurringCmd.Command("pause", "Pause a recurring task (deletes its open spawned tasks)")
	recurringPauseID  = recurringPauseCmd.Arg("id", "Recurring task ID").Required().String()

	recurringResumeCmd = recurringCmd.Command("resume", "Resume a paused recurring task")
	recurringResumeID  = recurringResumeCmd.Arg("id", "Recurring task ID").Required().String()

	// Monitor commands
	monitorCmd       = app.Command("monitor", "Stuck-task monitor commands")
	monitorCheckCmd  = monitorCmd.Command("check", "Run a stuck-task pass now")
	monitorStatusCmd = monitorCmd.Command("status", "Show monitor statistics")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := newClient(*serverURL, *apiKey)

	var err error
	switch command {
	case taskListCmd.FullCommand():
		err = client.listTasks(*taskListStatus, *taskListAssignee)
	case taskCreateCmd.FullCommand():
		err = client.createTask(*taskCreateTitle, *taskCreateDesc, *taskCreatePriority, *taskCreateAssignee, *taskCreateTags)
	case taskShowCmd.FullCommand():
		err = client.showTask(*taskShowID)
	case taskStatusCmd.FullCommand():
		err = client.updateStatus(*taskStatusID, *taskStatusTarget, *taskStatusActor)
	case taskAssignCmd.FullCommand():
		err = client.assignTask(*taskAssignID, *taskAssignAgent)
	case taskCompleteCmd.FullCommand():
		err = client.completeTask(*taskCompleteID, *taskCompleteActor)
	case taskApproveCmd.FullCommand():
		err = client.reviewTask(*taskApproveID, "approve", "", *taskApproveActor)
	case taskRejectCmd.FullCommand():
		err = client.reviewTask(*taskRejectID, "reject", *taskRejectFeedback, *taskRejectActor)
	case taskLogCmd.FullCommand():
		err = client.addActivity(*taskLogID, *taskLogAgent, *taskLogMessage)
	case agentListCmd.FullCommand():
		err = client.listAgents()
	case recurringListCmd.FullCommand():
		err = client.listRecurring()
	case recurringTriggerCmd.FullCommand():
		err = client.triggerRecurring(*recurringTriggerID)
	case recurringPauseCmd.FullCommand():
		err = client.setRecurringActive(*recurringPauseID, false)
	case recurringResumeCmd.FullCommand():
		err = client.setRecurringActive(*recurringResumeID, true)
	case monitorCheckCmd.FullCommand():
		err = client.monitorCheck()
	case monitorStatusCmd.FullCommand():
		err = client.monitorStatus()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
