// Package digest sends a weekly summary of the applications to webhooks and email recipients.
// The summary covers the ISO week before the one the scheduled run happens in.
package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/go-pkgz/syncs"
	"github.com/robfig/cron/v3"

	"github.com/umputun/jobtrack/app/enums"
	"github.com/umputun/jobtrack/app/tracker"
)

//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier
//go:generate moq -out mocks/source.go -pkg mocks -skip-ensure -fmt goimports . Source
//go:generate moq -out mocks/cron.go -pkg mocks -skip-ensure -fmt goimports . Cron
//go:generate moq -out mocks/repeater.go -pkg mocks -skip-ensure -fmt goimports . Repeater

// DefaultSchedule is monday morning
const DefaultSchedule = "0 9 * * 1"

// Notifier delivers a message to a destination, same as notify.Notifier
type Notifier interface {
	String() string
	Schema() string
	Send(ctx context.Context, destination, text string) error
}

// Source provides the view of a week, implemented by tracker.Tracker
type Source interface {
	ViewOf(c tracker.Cursor) tracker.View
}

// Cron interface defines robfig/cron methods used by service
type Cron interface {
	Start()
	Stop() context.Context
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
}

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Params to make Service
type Params struct {
	Schedule    string   // crontab spec, DefaultSchedule if empty
	Webhooks    []string // http(s) urls
	Emails      []string // recipients
	From        string   // sender of emails
	BaseURL     string   // link to the ui, optional
	SendEmpty   bool     // send even if the week has no applications
	Concurrency int      // parallel destinations
	Timeout     time.Duration
	SMTP        notify.SMTPParams
	Retry       struct {
		Attempts int
		Duration time.Duration
		Factor   float64
	}
}

// Service sends the digest on schedule
type Service struct {
	Params
	Source    Source
	Cron      Cron
	Repeater  Repeater
	Notifiers []notify.Notifier
	Now       func() time.Time
}

// New makes Service with webhook and email notifiers. Returns error if no destinations configured
// or the schedule can't be parsed.
func New(p Params, src Source) (*Service, error) {
	if len(p.Webhooks) == 0 && len(p.Emails) == 0 {
		return nil, errors.New("no digest destinations")
	}
	if p.Schedule == "" {
		p.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(p.Schedule); err != nil {
		return nil, fmt.Errorf("can't parse digest schedule %q: %w", p.Schedule, err)
	}
	for _, wh := range p.Webhooks {
		if !strings.HasPrefix(wh, "http://") && !strings.HasPrefix(wh, "https://") {
			return nil, fmt.Errorf("webhook %q should start with http:// or https://", wh)
		}
	}
	if len(p.Emails) > 0 && p.From == "" {
		return nil, errors.New("digest sender email is required with email recipients")
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 4
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	if p.Retry.Attempts <= 0 {
		p.Retry.Attempts = 3
	}
	if p.Retry.Duration <= 0 {
		p.Retry.Duration = time.Second
	}
	if p.Retry.Factor < 1 {
		p.Retry.Factor = 2
	}

	res := &Service{
		Params: p,
		Source: src,
		Cron:   cron.New(),
		Repeater: repeater.New(&strategy.Backoff{Repeats: p.Retry.Attempts, Duration: p.Retry.Duration,
			Factor: p.Retry.Factor, Jitter: true}),
		Now: time.Now,
	}
	if len(p.Webhooks) > 0 {
		res.Notifiers = append(res.Notifiers, notify.NewWebhook(notify.WebhookParams{Timeout: p.Timeout,
			Headers: []string{"Content-Type:text/plain; charset=utf-8"}}))
	}
	if len(p.Emails) > 0 {
		smtp := p.SMTP
		smtp.ContentType = "text/html"
		if smtp.TimeOut <= 0 {
			smtp.TimeOut = p.Timeout
		}
		res.Notifiers = append(res.Notifiers, notify.NewEmail(smtp))
	}
	return res, nil
}

// Run schedules the digest and blocks until ctx is done
func (s *Service) Run(ctx context.Context) error {
	sched, err := cron.ParseStandard(s.Schedule)
	if err != nil {
		return fmt.Errorf("can't parse digest schedule %q: %w", s.Schedule, err)
	}
	s.Cron.Schedule(sched, cron.FuncJob(func() {
		if err := s.SendWeek(ctx, s.LastWeek()); err != nil {
			log.Printf("[WARN] failed to send digest, %v", err)
		}
	}))
	log.Printf("[INFO] digest scheduled %q, next at %s", s.Schedule, sched.Next(s.Now()).Format(time.RFC3339))

	s.Cron.Start()
	<-ctx.Done()
	log.Print("[DEBUG] digest terminated")
	<-s.Cron.Stop().Done()
	return nil
}

// LastWeek returns the week before the current one
func (s *Service) LastWeek() tracker.Cursor {
	return tracker.CursorOf(tracker.DateOf(s.Now())).Prev()
}

// SendWeek sends the digest of week c to all destinations. An empty week is skipped unless SendEmpty set.
func (s *Service) SendWeek(ctx context.Context, c tracker.Cursor) error {
	v := s.Source.ViewOf(c)
	if v.Empty() && !s.SendEmpty {
		log.Printf("[DEBUG] no applications in %s, digest skipped", c)
		return nil
	}

	subj := fmt.Sprintf("Bewerbungen %s (%s)", c, v.Range)
	var html, text string
	var err error
	if len(s.Emails) > 0 {
		if html, err = s.MakeDigestHTML(v); err != nil {
			return err
		}
	}
	if len(s.Webhooks) > 0 {
		text = s.MakeDigestText(v)
	}

	type message struct{ dest, text string }
	msgs := make([]message, 0, len(s.Webhooks)+1)
	for _, wh := range s.Webhooks {
		msgs = append(msgs, message{dest: wh, text: text})
	}
	if len(s.Emails) > 0 {
		msgs = append(msgs, message{dest: s.mailto(subj), text: html})
	}

	var mu sync.Mutex
	var errs []error
	gr := syncs.NewSizedGroup(s.Concurrency)
	for _, m := range msgs {
		gr.Go(func(context.Context) {
			if e := s.send(ctx, m.dest, m.text); e != nil {
				mu.Lock()
				errs = append(errs, e)
				mu.Unlock()
			}
		})
	}
	gr.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("digest for %s failed for %d of %d destinations: %w", c, len(errs), len(msgs), errors.Join(errs...))
	}
	log.Printf("[INFO] digest for %s sent to %d destinations, %d applications", c, len(msgs), v.Stats.Total)
	return nil
}

func (s *Service) send(ctx context.Context, dest, text string) error {
	return s.Repeater.Do(ctx, func() error {
		ctxTimeout, cancel := context.WithTimeout(ctx, s.Timeout)
		defer cancel()
		if err := notify.Send(ctxTimeout, s.Notifiers, dest, text); err != nil {
			log.Printf("[DEBUG] digest to %s failed, %v", redact(dest), err)
			return fmt.Errorf("send to %s: %w", redact(dest), err)
		}
		return nil
	})
}

// mailto makes go-pkgz/notify email destination for all recipients
func (s *Service) mailto(subj string) string {
	q := url.Values{}
	q.Set("from", s.From)
	q.Set("subject", subj)
	return "mailto:" + strings.Join(s.Emails, ",") + "?" + q.Encode()
}

// redact drops query and credentials of webhook urls for logs
func redact(dest string) string {
	if strings.HasPrefix(dest, "mailto:") {
		return dest
	}
	u, err := url.Parse(dest)
	if err != nil {
		return "webhook"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// MakeDigestText makes plain text summary for webhooks
func (s *Service) MakeDigestText(v tracker.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %d Bewerbungen, %d Interviews, %d Angebote\n",
		v.Cursor, v.Range, v.Stats.Total, v.Stats.Interviews, v.Stats.Offers)
	for _, j := range v.Jobs {
		fmt.Fprintf(&b, "- %s, %s: %s (%s)\n", j.CompanyName, j.Position, enums.StatusLabel(j.Status),
			j.ApplicationDate.Format("02.01.2006"))
	}
	if s.BaseURL != "" {
		b.WriteString(s.BaseURL + "\n")
	}
	return b.String()
}

// MakeDigestHTML makes html email body
func (s *Service) MakeDigestHTML(v tracker.View) (string, error) {
	tmpl := `<!DOCTYPE html>
<html>
	<head>
		<meta name="viewport" content="width=device-width" />
		<meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
		<style type="text/css">
			body {
				font-family: "Arial";
				font-size: 1.0em;
			}
			table {
				border-collapse: collapse;
			}
			td, th {
				padding: 0.3em 0.6em;
				border-bottom: 1px solid #ddd;
				text-align: left;
			}
			.bold {
				font-weight: 900;
			}
		</style>
	</head>

	<body>
		<p><span class="bold">{{.Cursor}}</span> ({{.Range}})</p>
		<ul>
			<li>Gesamt: <span class="bold">{{.Stats.Total}}</span></li>
			<li>Interviews: <span class="bold">{{.Stats.Interviews}}</span></li>
			<li>Angebote: <span class="bold">{{.Stats.Offers}}</span></li>
		</ul>
		{{if .Jobs}}
		<table>
			<tr><th>Datum</th><th>Firma</th><th>Position</th><th>Status</th></tr>
			{{range .Jobs}}
			<tr>
				<td>{{.ApplicationDate.Format "02.01.2006"}}</td>
				<td>{{if .URL}}<a href="{{deref .URL}}">{{.CompanyName}}</a>{{else}}{{.CompanyName}}{{end}}</td>
				<td>{{.Position}}</td>
				<td>{{statusLabel .Status}}</td>
			</tr>
			{{end}}
		</table>
		{{else}}
		<p>Keine Bewerbungen in dieser Woche.</p>
		{{end}}
		{{if .BaseURL}}<p><a href="{{.BaseURL}}">Zum Job Tracker</a></p>{{end}}
	</body>
</html>
`
	funcs := template.FuncMap{
		"statusLabel": enums.StatusLabel,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
	t, err := template.New("digest").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("can't parse digest template: %w", err)
	}

	data := struct {
		tracker.View
		BaseURL string
	}{View: v, BaseURL: s.BaseURL}

	buf := bytes.Buffer{}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("can't execute digest template: %w", err)
	}
	return buf.String(), nil
}
