package notify

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// DispatcherConfig configures lead notifications.
type DispatcherConfig struct {
	SiteName string
	// AdminTo receives the operator alert. Empty skips it.
	AdminTo string
}

// Report is the per-recipient outcome of NotifyLead.
type Report struct {
	AdminSent    bool
	AdminSkipped bool
	AdminErr     error
	AckSent      bool
	AckErr       error
}

// Err joins the individual send failures.
func (r Report) Err() error {
	return errors.Join(r.AdminErr, r.AckErr)
}

// Dispatcher sends the operator alert and the submitter acknowledgment for a lead.
type Dispatcher struct {
	sender   EmailSender
	siteName string
	adminTo  string
	logger   *logging.Logger
}

// NewDispatcher builds a dispatcher. A nil sender falls back to the stub sender.
func NewDispatcher(sender EmailSender, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	site := strings.TrimSpace(cfg.SiteName)
	if site == "" {
		site = defaultFromName
	}
	return &Dispatcher{
		sender:   sender,
		siteName: site,
		adminTo:  strings.TrimSpace(cfg.AdminTo),
		logger:   logger,
	}
}

// NotifyLead sends both messages concurrently. Neither send affects the other
// and failures are reported, never returned.
func (d *Dispatcher) NotifyLead(ctx context.Context, rec *leads.Record) Report {
	var (
		report Report
		g      errgroup.Group
	)

	if d.adminTo == "" {
		report.AdminSkipped = true
		d.logger.Warn("operator alert skipped: MAIL_TO not configured", "ticket", rec.Ticket)
	} else {
		g.Go(func() error {
			report.AdminErr = d.sendAdmin(ctx, rec)
			report.AdminSent = report.AdminErr == nil
			return nil
		})
	}

	g.Go(func() error {
		report.AckErr = d.sendAck(ctx, rec)
		report.AckSent = report.AckErr == nil
		return nil
	})

	_ = g.Wait()

	if err := report.Err(); err != nil {
		d.logger.Error("lead notification incomplete", "ticket", rec.Ticket, "error", err,
			"admin_sent", report.AdminSent, "ack_sent", report.AckSent)
	}
	return report
}

func (d *Dispatcher) sendAdmin(ctx context.Context, rec *leads.Record) error {
	body, err := renderAdminBody(rec)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, EmailMessage{
		To:          d.adminTo,
		ReplyTo:     rec.ReplyAddress(),
		ReplyToName: rec.DisplayName(),
		Subject:     adminSubject(d.siteName, rec.Name),
		Body:        body,
		Kind:        KindLeadAdmin,
		Ticket:      rec.Ticket,
	})
}

func (d *Dispatcher) sendAck(ctx context.Context, rec *leads.Record) error {
	body, err := renderAckBody(d.siteName, rec)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, EmailMessage{
		To:      rec.ReplyAddress(),
		ToName:  rec.DisplayName(),
		ReplyTo: d.adminTo,
		Subject: ackSubject(d.siteName),
		Body:    body,
		Kind:    KindLeadAck,
		Ticket:  rec.Ticket,
	})
}
