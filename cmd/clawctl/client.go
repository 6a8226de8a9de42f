package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL, apiKey string) *client {
	return &client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type taskView struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssigneeID string `json:"assignee_id"`
	Reviewer   string `json:"reviewer"`
	UpdatedAt  string `json:"updated_at"`
}

var statusColors = map[string]*color.Color{
	"INBOX":       color.New(color.FgWhite),
	"ASSIGNED":    color.New(color.FgCyan),
	"IN_PROGRESS": color.New(color.FgYellow),
	"REVIEW":      color.New(color.FgMagenta),
	"DONE":        color.New(color.FgGreen),
}

func colorStatus(status string) string {
	if c, ok := statusColors[status]; ok {
		return c.Sprint(status)
	}
	return status
}

func (c *client) listTasks(status, assignee string) error {
	path := "/api/tasks?"
	if status != "" {
		path += "status=" + status + "&"
	}
	if assignee != "" {
		path += "assignee_id=" + assignee
	}

	var tasks []taskView
	if err := c.do(http.MethodGet, path, nil, &tasks); err != nil {
		return err
	}

	w := tabwriter.NewWriter(color.Output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tASSIGNEE\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, colorStatus(t.Status), t.Priority, t.AssigneeID, t.Title)
	}
	return w.Flush()
}

func (c *client) createTask(title, description, priority, assignee string, tags []string) error {
	var t taskView
	err := c.do(http.MethodPost, "/api/tasks", map[string]any{
		"title":       title,
		"description": description,
		"priority":    priority,
		"assignee_id": assignee,
		"tags":        tags,
	}, &t)
	if err != nil {
		return err
	}
	fmt.Printf("Created task %s (%s)\n", t.ID, colorStatus(t.Status))
	return nil
}

func (c *client) showTask(id string) error {
	var t struct {
		taskView
		Description string `json:"description"`
		CreatedAt   string `json:"created_at"`
	}
	if err := c.do(http.MethodGet, "/api/tasks/"+id, nil, &t); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println(t.Title)
	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Status:    %s\n", colorStatus(t.Status))
	fmt.Printf("Priority:  %s\n", t.Priority)
	fmt.Printf("Assignee:  %s\n", t.AssigneeID)
	fmt.Printf("Reviewer:  %s\n", t.Reviewer)
	fmt.Printf("Updated:   %s\n", t.UpdatedAt)
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	return nil
}

func (c *client) updateStatus(id, status, actor string) error {
	var t taskView
	err := c.do(http.MethodPatch, "/api/tasks/"+id, map[string]any{
		"status": status,
		"actor":  actor,
	}, &t)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s is now %s\n", t.ID, colorStatus(t.Status))
	return nil
}

func (c *client) assignTask(id, agent string) error {
	var t taskView
	err := c.do(http.MethodPatch, "/api/tasks/"+id, map[string]any{
		"assignee_id": agent,
	}, &t)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s assigned to %s (%s)\n", t.ID, t.AssigneeID, colorStatus(t.Status))
	return nil
}

func (c *client) completeTask(id, actor string) error {
	var t taskView
	err := c.do(http.MethodPost, "/api/tasks/"+id+"/complete", map[string]any{"actor": actor}, &t)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s sent to review (reviewer: %s)\n", t.ID, t.Reviewer)
	return nil
}

func (c *client) reviewTask(id, action, feedback, actor string) error {
	var t taskView
	err := c.do(http.MethodPost, "/api/tasks/"+id+"/review", map[string]any{
		"action":   action,
		"feedback": feedback,
		"actor":    actor,
	}, &t)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s is now %s\n", t.ID, colorStatus(t.Status))
	return nil
}

func (c *client) addActivity(id, agent, message string) error {
	var resp struct {
		AutoTransitioned bool   `json:"auto_transitioned"`
		NewStatus        string `json:"new_status"`
	}
	err := c.do(http.MethodPost, "/api/tasks/"+id+"/activity", map[string]any{
		"agent_id": agent,
		"message":  message,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.AutoTransitioned {
		fmt.Printf("Activity recorded, task moved to %s\n", colorStatus(resp.NewStatus))
	} else {
		fmt.Println("Activity recorded")
	}
	return nil
}

func (c *client) listAgents() error {
	var agents []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Role   string `json:"role"`
		Status string `json:"status"`
	}
	if err := c.do(http.MethodGet, "/api/agents", nil, &agents); err != nil {
		return err
	}

	w := tabwriter.NewWriter(color.Output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATUS")
	for _, a := range agents {
		status := a.Status
		switch a.Status {
		case "WORKING":
			status = color.GreenString(a.Status)
		case "IDLE":
			status = color.YellowString(a.Status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Role, status)
	}
	return w.Flush()
}

func (c *client) listRecurring() error {
	var all []struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		IsActive      bool   `json:"is_active"`
		ScheduleHuman string `json:"schedule_human"`
		NextRunAt     string `json:"next_run_at"`
		RunCount      int    `json:"run_count"`
	}
	if err := c.do(http.MethodGet, "/api/recurring", nil, &all); err != nil {
		return err
	}

	w := tabwriter.NewWriter(color.Output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTIVE\tSCHEDULE\tNEXT RUN\tRUNS\tTITLE")
	for _, rt := range all {
		active := color.GreenString("yes")
		if !rt.IsActive {
			active = color.RedString("no")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", rt.ID, active, rt.ScheduleHuman, rt.NextRunAt, rt.RunCount, rt.Title)
	}
	return w.Flush()
}

func (c *client) triggerRecurring(id string) error {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(http.MethodPost, "/api/recurring/"+id+"/trigger", struct{}{}, &resp); err != nil {
		return err
	}
	fmt.Printf("Triggered, spawned task %s\n", resp.TaskID)
	return nil
}

func (c *client) setRecurringActive(id string, active bool) error {
	if err := c.do(http.MethodPatch, "/api/recurring/"+id, map[string]any{"is_active": active}, nil); err != nil {
		return err
	}
	if active {
		fmt.Println("Resumed")
	} else {
		fmt.Println("Paused (open spawned tasks were deleted)")
	}
	return nil
}

func (c *client) monitorCheck() error {
	var summary struct {
		StuckTasks []struct {
			TaskID         string  `json:"task_id"`
			Title          string  `json:"title"`
			Status         string  `json:"status"`
			HoursStuck     float64 `json:"time_stuck_hours"`
			ThresholdHours float64 `json:"threshold_hours"`
		} `json:"stuck_tasks"`
		NotificationsSent int `json:"notifications_sent"`
		AgentsOffline     []struct {
			AgentID string `json:"agent_id"`
		} `json:"agents_offline"`
	}
	if err := c.do(http.MethodPost, "/api/monitor/check", struct{}{}, &summary); err != nil {
		return err
	}

	if len(summary.StuckTasks) == 0 {
		color.Green("No stuck tasks")
	}
	for _, st := range summary.StuckTasks {
		color.Yellow("%s  %s in %s for %.1fh (threshold %.1fh)", st.TaskID, st.Title, st.Status, st.HoursStuck, st.ThresholdHours)
	}
	fmt.Printf("Notifications sent: %d\n", summary.NotificationsSent)
	for _, a := range summary.AgentsOffline {
		color.Red("Agent offline: %s", a.AgentID)
	}
	return nil
}

func (c *client) monitorStatus() error {
	var status struct {
		LastRun               string `json:"last_run"`
		TotalNotifications    int    `json:"total_notifications_sent"`
		CurrentlyTrackedTasks int    `json:"currently_tracked_tasks"`
	}
	if err := c.do(http.MethodGet, "/api/monitor/status", nil, &status); err != nil {
		return err
	}
	fmt.Printf("Last run:         %s\n", status.LastRun)
	fmt.Printf("Notifications:    %d\n", status.TotalNotifications)
	fmt.Printf("Tracked tasks:    %d\n", status.CurrentlyTrackedTasks)
	return nil
}
