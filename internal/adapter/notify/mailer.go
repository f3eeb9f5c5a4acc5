// Package notify emails a plain-text summary after each ingestion run.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("covid-report-etl/notify")

// SMTPConfig addresses the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Mailer sends run summaries.
type Mailer struct {
	cfg SMTPConfig
}

// NewMailer creates a Mailer.
func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send emails a summary of report. PLAIN auth is used when a username is
// configured; servers that do not offer AUTH get an unauthenticated send.
func (m *Mailer) Send(ctx context.Context, report *domain.RunReport) error {
	_, span := tracer.Start(ctx, "notify.send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("COVID Report ETL <%s>", m.cfg.From)
	mail.To = m.cfg.To
	mail.Subject = Subject(report)
	mail.Text = []byte(Body(report))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	err := mail.Send(addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("send run summary: %w", err)
	}
	return nil
}

// Subject is a one-line verdict for the run.
func Subject(r *domain.RunReport) string {
	verdict := "ok"
	switch {
	case r.Err != nil:
		verdict = "FAILED"
	case r.Cancelled:
		verdict = "cancelled"
	case r.Count(domain.StateSkippedWithWarning) > 0:
		verdict = "completed with warnings"
	}
	return fmt.Sprintf("[covid-report-etl] %s: %d dates merged, %s", r.Range.String(), r.Count(domain.StateMerged), verdict)
}

// Body renders the run summary.
func Body(r *domain.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Range:      %s\n", r.Range.String())
	fmt.Fprintf(&b, "Started:    %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:   %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "Merged:     %d dates, %d rows\n", r.Count(domain.StateMerged), r.RowsMerged())
	fmt.Fprintf(&b, "Skipped:    %d not published, %d with warnings, %d already merged\n",
		r.Count(domain.StateSkipped), r.Count(domain.StateSkippedWithWarning), r.Count(domain.StateAlreadyMerged))
	if added := r.ColumnsAdded(); len(added) > 0 {
		fmt.Fprintf(&b, "New columns: %s\n", strings.Join(added, ", "))
	}
	if r.Cancelled {
		b.WriteString("The run was cancelled before reaching the end of the range.\n")
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "\nRun aborted: %v\n", r.Err)
	}

	var notes []string
	for _, res := range r.Results {
		day := domain.FormatDate(res.Date)
		switch {
		case res.State == domain.StateSkippedWithWarning:
			notes = append(notes, fmt.Sprintf("%s  skipped: %v", day, res.Err))
		case len(res.Renamed) > 0:
			pairs := make([]string, 0, len(res.Renamed))
			for from, to := range res.Renamed {
				pairs = append(pairs, from+" -> "+to)
			}
			sort.Strings(pairs)
			notes = append(notes, fmt.Sprintf("%s  renamed: %s", day, strings.Join(pairs, ", ")))
		}
		for _, c := range res.Conflicts {
			notes = append(notes, fmt.Sprintf("%s  conflict on %s: %s (chose %s)", day, c.Incoming, c.Reason, c.Chosen))
		}
	}
	if len(notes) > 0 {
		b.WriteString("\nDetails:\n")
		for _, n := range notes {
			b.WriteString("  " + n + "\n")
		}
	}
	return b.String()
}
