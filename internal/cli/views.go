package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/node"
	"github.com/roach88/fieldnode/internal/syncer"
)

type identityView struct {
	model.Identity `yaml:",inline"`
	Created        bool `json:"created" yaml:"created"`
}

func (v identityView) WriteText(w io.Writer) error {
	verb := "Loaded"
	if v.Created {
		verb = "Created"
	}
	_, err := fmt.Fprintf(w, "%s identity %s (created %s)\n", verb, v.NodeID, v.CreatedAt.Format(time.RFC3339))
	return err
}

type observationView struct {
	model.Observation `yaml:",inline"`
}

func (v observationView) WriteText(w io.Writer) error {
	o := v.Observation
	fmt.Fprintf(w, "ID:        %s\n", o.ID)
	fmt.Fprintf(w, "Title:     %s\n", o.Title)
	fmt.Fprintf(w, "Status:    %s\n", o.Status)
	fmt.Fprintf(w, "Created:   %s\n", formatMillis(o.CreatedAt))
	fmt.Fprintf(w, "Location:  %.5f, %.5f (geohash %s)\n", o.Lat, o.Lon, o.Geohash)
	if o.ResidencyCommitment != "" {
		fmt.Fprintf(w, "Residency: %s\n", o.ResidencyCommitment)
	}
	if len(o.Tags) > 0 {
		fmt.Fprintf(w, "Tags:      %s\n", strings.Join(o.Tags, ", "))
	}
	if o.ParentID != "" {
		fmt.Fprintf(w, "Parent:    %s\n", o.ParentID)
	}
	if len(o.MediaIDs) > 0 {
		fmt.Fprintf(w, "Media:     %s\n", strings.Join(o.MediaIDs, ", "))
	}
	return nil
}

type observationList []model.Observation

func (l observationList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No observations.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tGEOHASH\tCREATED\tTITLE")
	for _, o := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.Status, o.Geohash, formatMillis(o.CreatedAt), o.Title)
	}
	return tw.Flush()
}

type outboxList []model.OutboxEntry

func (l outboxList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "Outbox empty.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tOP\tRETRIES\tLAST ATTEMPT")
	for _, e := range l {
		last := "-"
		if e.LastAttempt > 0 {
			last = formatMillis(e.LastAttempt)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", e.Seq, e.ID, e.OpType, e.RetryCount, last)
	}
	return tw.Flush()
}

type auditList []model.AuditEntry

func (l auditList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "Audit log empty.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSEVERITY\tEVENT\tMETADATA")
	for _, e := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatMillis(e.Timestamp), e.Severity, e.Event, formatMetadata(e.Metadata))
	}
	return tw.Flush()
}

type statusView struct {
	NodeID string               `json:"nodeId,omitempty" yaml:"nodeId,omitempty"`
	Sync   syncer.Status        `json:"sync" yaml:"sync"`
	Counts map[model.Status]int `json:"counts" yaml:"counts"`
}

func (v statusView) WriteText(w io.Writer) error {
	nodeID := v.NodeID
	if nodeID == "" {
		nodeID = "(none, run init)"
	}
	online := "offline"
	if v.Sync.IsOnline {
		online = "online"
	}
	fmt.Fprintf(w, "Node:     %s\n", nodeID)
	fmt.Fprintf(w, "Registry: %s\n", online)
	fmt.Fprintf(w, "Queue:    %d pending\n", v.Sync.QueueSize)
	fmt.Fprintf(w, "Phase:    %s\n", v.Sync.Phase)
	if v.Sync.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", v.Sync.LastError)
	}
	for _, s := range []model.Status{model.StatusLocal, model.StatusSent, model.StatusSynced, model.StatusFailed} {
		fmt.Fprintf(w, "%-9s %d\n", string(s)+":", v.Counts[s])
	}
	return nil
}

type drainView struct {
	Result syncer.DrainResult `json:"result" yaml:"result"`
	Queue  int                `json:"queueSize" yaml:"queueSize"`
}

func (v drainView) WriteText(w io.Writer) error {
	if v.Result.Skipped != syncer.SkipNone {
		_, err := fmt.Fprintf(w, "Sync skipped: %s (%d pending)\n", v.Result.Skipped, v.Queue)
		return err
	}
	_, err := fmt.Fprintf(w, "Synced %d of %d (retry %d, exhausted %d); %d pending\n",
		v.Result.Succeeded, v.Result.Attempted, v.Result.Retried, v.Result.Exhausted, v.Queue)
	return err
}

type feedView struct {
	Refresh *node.FeedResult    `json:"refresh,omitempty" yaml:"refresh,omitempty"`
	Reports []model.Observation `json:"reports" yaml:"reports"`
}

func (v feedView) WriteText(w io.Writer) error {
	if v.Refresh != nil {
		fmt.Fprintf(w, "Fetched %d reports, %d local observations confirmed.\n", v.Refresh.Count, v.Refresh.Promoted)
	}
	return observationList(v.Reports).WriteText(w)
}

type messageView struct {
	Message string `json:"message" yaml:"message"`
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
}

func (v messageView) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, v.Message)
	return err
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatMetadata(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}
