package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"

	tracker "github.com/jdziat/durable-cmd-tracker"
)

func printResults(w io.Writer, results []*tracker.Result) {
	data := pterm.TableData{{"Command", "Operation", "Status", "Targets", "Failed targets", "Duration"}}
	for _, r := range results {
		data = append(data, []string{
			r.CommandID,
			string(r.OperationType),
			string(r.Status),
			fmt.Sprint(r.Total),
			joinOrDash(r.FailedTargets),
			r.Duration().Round(time.Millisecond).String(),
		})
	}
	renderTable(w, data)

	for _, r := range results {
		switch r.Status {
		case tracker.StatusCompleted:
			pterm.Success.WithWriter(w).Printfln("%s %s completed", r.Name, r.CommandID)
		case tracker.StatusCanceled:
			pterm.Warning.WithWriter(w).Printfln("%s %s was cancelled", r.Name, r.CommandID)
		default:
			pterm.Error.WithWriter(w).Printfln("%s %s failed: %s", r.Name, r.CommandID, joinOrDash(r.FailedTargets))
		}
	}
}

func printCommandRun(w io.Writer, run *tracker.CommandRun, attempts []*tracker.AttemptRecord) {
	pterm.DefaultSection.WithWriter(w).Printfln("Command %s", run.ID)
	info := pterm.TableData{
		{"Name", run.Name},
		{"Operation", string(run.OperationType)},
		{"Status", string(run.Status)},
		{"Targets", fmt.Sprint(run.TargetCount)},
		{"Failed targets", joinOrDash(run.FailedTargets)},
		{"Started", run.StartedAt.Format(time.RFC3339)},
	}
	if run.FinishedAt != nil {
		info = append(info, []string{"Finished", run.FinishedAt.Format(time.RFC3339)})
	}
	if len(run.Unattributed) > 0 {
		info = append(info, []string{"Unattributed", joinOrDash(run.Unattributed)})
	}
	_ = pterm.DefaultTable.WithWriter(w).WithData(info).Render()

	if len(attempts) == 0 {
		return
	}
	data := pterm.TableData{{"Target", "Job", "Status", "Submits", "Failed targets"}}
	for _, at := range attempts {
		data = append(data, []string{
			at.Target,
			at.JobID,
			string(at.Status),
			fmt.Sprint(at.SubmitAttempts),
			joinOrDash(at.FailedTargets),
		})
	}
	renderTable(w, data)
}

func printJobInfo(w io.Writer, info *tracker.JobInfo) {
	pterm.DefaultSection.WithWriter(w).Printfln("Job %s (%s)", info.ID, info.Status)
	if info.ErrorMessage != "" {
		pterm.Error.WithWriter(w).Println(info.ErrorMessage)
	}
	if len(info.Children) == 0 {
		return
	}
	data := pterm.TableData{{"Task", "Status", "Description", "Error"}}
	for _, c := range info.Children {
		data = append(data, []string{c.ID, string(c.Status), c.Description, c.ErrorMessage})
	}
	renderTable(w, data)
}

func renderTable(w io.Writer, data pterm.TableData) {
	_ = pterm.DefaultTable.WithWriter(w).WithHasHeader().WithData(data).Render()
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}

func printCancelled(w io.Writer, jobID string) {
	pterm.Success.WithWriter(w).Printfln("Job %s cancelled", jobID)
}
