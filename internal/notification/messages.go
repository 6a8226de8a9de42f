package notification

import "fmt"

// Message builders shared by the HTTP handlers, the auto-transition engine
// and the review actions. The monitor builds its own stuck-task alerts.

func truncate(s string, max int) string {
	if s == "" {
		return "No description"
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func TaskAssignedMessage(status, title, taskID, description, boardURL string) string {
	return fmt.Sprintf(`%s: %s

**Task ID:** %s

**Description:**
%s

View in ClawController: %s`, status, title, taskID, truncate(description, 500), boardURL)
}

func ReviewRequestedMessage(title, taskID, submittedBy, description, boardURL string) string {
	if submittedBy == "" {
		submittedBy = "Unknown"
	}
	return fmt.Sprintf(`📋 Task ready for review: %s

**Submitted by:** %s
**Task ID:** %s
**Description:** %s

View in ClawController: %s`, title, submittedBy, taskID, truncate(description, 300), boardURL)
}

func TaskRejectedMessage(title, taskID, rejectedBy, feedback, boardURL string) string {
	if rejectedBy == "" {
		rejectedBy = "Reviewer"
	}
	if feedback == "" {
		feedback = "No feedback provided"
	}
	return fmt.Sprintf(`🔄 Task sent back for changes: %s

**Rejected by:** %s
**Task ID:** %s
**Feedback:** %s

Please address the feedback and resubmit when ready.

View in ClawController: %s`, title, rejectedBy, taskID, feedback, boardURL)
}

func TaskCompletedMessage(title, taskID, completedBy, description, boardURL string) string {
	if completedBy == "" {
		completedBy = "Unknown"
	}
	return fmt.Sprintf(`✅ Task completed: %s

**Completed by:** %s
**Task ID:** %s
**Description:** %s

View in ClawController: %s`, title, completedBy, taskID, truncate(description, 300), boardURL)
}
