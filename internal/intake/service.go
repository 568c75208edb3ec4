package intake

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/incierge/incierge-intake/internal/analytics"
	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/internal/notify"
	"github.com/incierge/incierge-intake/internal/observability/metrics"
	"github.com/incierge/incierge-intake/internal/turnstile"
	"github.com/incierge/incierge-intake/pkg/logging"
)

var tracer = otel.Tracer("incierge.internal.intake")

const maxTicketAttempts = 3

// Verifier checks a bot-verification token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*turnstile.Result, error)
}

// Notifier fans a new lead out to the operator and the submitter.
type Notifier interface {
	NotifyLead(ctx context.Context, rec *leads.Record) notify.Report
}

// Mirror copies a record into a reporting database.
type Mirror interface {
	Mirror(ctx context.Context, rec *leads.Record) (bool, error)
}

// Archiver writes a record to long-term object storage.
type Archiver interface {
	ArchiveLead(ctx context.Context, rec *leads.Record) error
}

// Deps are the collaborators of a Service. Verifier, Records and Background are required.
type Deps struct {
	Verifier   Verifier
	Records    leads.RecordStore
	Index      leads.TimeIndex
	Notifier   Notifier
	Analytics  analytics.Emitter
	Mirror     Mirror
	Archiver   Archiver
	Background *Background
	Metrics    *metrics.IntakeMetrics
}

// Options are the capability flags and limits of a Service.
type Options struct {
	TTL                  time.Duration
	CaptureUTM           bool
	EnableSecondaryStore bool
	EnableAnalytics      bool
	// SiteURL is reported to analytics when the referer is not usable.
	SiteURL string
}

// Service runs the intake pipeline: validate, verify, persist, then hand
// notifications and other side effects to the background runner.
type Service struct {
	deps      Deps
	opts      Options
	logger    *logging.Logger
	now       func() time.Time
	newTicket func() string
}

func NewService(deps Deps, opts Options, logger *logging.Logger) *Service {
	if deps.Verifier == nil {
		panic("intake: verifier required")
	}
	if deps.Records == nil {
		panic("intake: record store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Background == nil {
		deps.Background = NewBackground(0, logger)
	}
	if deps.Analytics == nil {
		deps.Analytics = analytics.NopEmitter{}
	}
	if opts.TTL <= 0 {
		opts.TTL = 14 * 24 * time.Hour
	}
	return &Service{
		deps:      deps,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		newTicket: uuid.NewString,
	}
}

// Background exposes the side-effect runner so callers can drain it.
func (s *Service) Background() *Background {
	return s.deps.Background
}

// Submit processes one submission. On success the stored record is returned
// and side effects are already scheduled; otherwise the error is a *Failure.
func (s *Service) Submit(ctx context.Context, sub leads.Submission, meta leads.RequestMeta) (*leads.Record, error) {
	ctx, span := tracer.Start(ctx, "intake.submit")
	defer span.End()

	rec, err := s.submit(ctx, sub, meta)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			span.SetAttributes(
				attribute.String("intake.state", string(f.State)),
				attribute.String("intake.reason", f.Reason),
			)
			s.deps.Metrics.ObserveSubmission(string(f.State), f.Reason)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("intake.state", string(StateCompleted)),
		attribute.String("intake.ticket", rec.Ticket),
	)
	s.deps.Metrics.ObserveSubmission(string(StateCompleted), "")
	return rec, nil
}

func (s *Service) submit(ctx context.Context, sub leads.Submission, meta leads.RequestMeta) (*leads.Record, error) {
	if err := sub.Validate(); err != nil {
		return nil, validationFailure(err)
	}

	if err := s.verify(ctx, sub.Token, meta.ClientIP); err != nil {
		return nil, err
	}

	rec, err := s.persist(ctx, sub, meta)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, rec, meta)
	s.logger.Info("contact lead accepted", "ticket", rec.Ticket, "state", StateCompleted)
	return rec, nil
}

func validationFailure(err error) *Failure {
	switch {
	case errors.Is(err, leads.ErrMissingFields):
		return rejected(ReasonMissingFields, http.StatusBadRequest, err)
	case errors.Is(err, leads.ErrMissingToken):
		return rejected(ReasonMissingToken, http.StatusBadRequest, err)
	case errors.Is(err, leads.ErrInvalidEmail):
		return rejected(ReasonInvalidEmail, http.StatusBadRequest, err)
	case errors.Is(err, leads.ErrFieldTooLong):
		return rejected(ReasonFieldTooLong, http.StatusBadRequest, err)
	default:
		return rejected(ReasonBadRequest, http.StatusBadRequest, err)
	}
}

func (s *Service) verify(ctx context.Context, token, remoteIP string) error {
	start := time.Now()
	_, err := s.deps.Verifier.Verify(ctx, strings.TrimSpace(token), remoteIP)
	elapsed := time.Since(start).Seconds()

	var (
		cfgErr      *turnstile.ConfigError
		rejectedErr *turnstile.RejectedError
	)
	switch {
	case err == nil:
		s.deps.Metrics.ObserveVerification("success", elapsed)
		return nil
	case errors.As(err, &cfgErr):
		s.deps.Metrics.ObserveVerification("config_error", elapsed)
		s.logger.Error("verification misconfigured", "error", err)
		return configFailure(err)
	case errors.As(err, &rejectedErr):
		s.deps.Metrics.ObserveVerification("rejected", elapsed)
		s.logger.Info("verification rejected", "error_codes", rejectedErr.Codes)
		f := rejected(ReasonVerificationFailed, http.StatusBadRequest, err)
		f.Codes = rejectedErr.Codes
		return f
	default:
		s.deps.Metrics.ObserveVerification("unavailable", elapsed)
		s.logger.Warn("verification unavailable", "error", err)
		return rejected(ReasonVerificationUnavailable, http.StatusServiceUnavailable, err)
	}
}

func (s *Service) persist(ctx context.Context, sub leads.Submission, meta leads.RequestMeta) (*leads.Record, error) {
	ctx, span := tracer.Start(ctx, "intake.persist")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		rec := leads.NewRecord(s.newTicket(), sub, meta, s.now(), s.opts.CaptureUTM)
		err := s.deps.Records.Put(ctx, rec, s.opts.TTL)
		if err == nil {
			s.indexByTime(ctx, rec)
			return rec, nil
		}
		lastErr = err
		if !errors.Is(err, leads.ErrTicketExists) {
			break
		}
		s.logger.Warn("ticket collision, regenerating", "ticket", rec.Ticket)
	}

	span.RecordError(lastErr)
	s.logger.Error("primary lead write failed", "error", lastErr)
	return nil, &Failure{
		State:  StateRejected,
		Reason: ReasonStorageFailure,
		Status: http.StatusInternalServerError,
		Err:    fmt.Errorf("intake: put record: %w", lastErr),
	}
}

func (s *Service) indexByTime(ctx context.Context, rec *leads.Record) {
	if s.deps.Index == nil {
		return
	}
	err := s.deps.Index.IndexByTime(ctx, rec, s.opts.TTL)
	s.deps.Metrics.ObserveSecondaryWrite("time_index", err)
	if err != nil {
		s.logger.Warn("time index write failed", "ticket", rec.Ticket, "error", err)
	}
}

// dispatch schedules every post-persistence side effect. None of them can
// change the response.
func (s *Service) dispatch(ctx context.Context, rec *leads.Record, meta leads.RequestMeta) {
	bg := s.deps.Background
	logger := s.logger.With("ticket", rec.Ticket)

	if s.deps.Notifier != nil {
		bg.Go(ctx, "notify", func(ctx context.Context) {
			report := s.deps.Notifier.NotifyLead(ctx, rec)
			s.observeReport(report)
			logger.Info("lead notifications finished", "state", StateNotified,
				"admin_sent", report.AdminSent, "ack_sent", report.AckSent)
		})
	}

	if s.opts.EnableAnalytics {
		evt := s.analyticsEvent(rec, meta)
		bg.Go(ctx, "analytics", func(ctx context.Context) {
			s.deps.Analytics.Emit(ctx, evt)
		})
	}

	if !s.opts.EnableSecondaryStore {
		return
	}
	if s.deps.Mirror != nil {
		bg.Go(ctx, "mirror", func(ctx context.Context) {
			_, err := s.deps.Mirror.Mirror(ctx, rec)
			s.deps.Metrics.ObserveSecondaryWrite("mirror", err)
			if err != nil {
				logger.Warn("lead mirror failed", "error", err)
			}
		})
	}
	if s.deps.Archiver != nil {
		bg.Go(ctx, "archive", func(ctx context.Context) {
			err := s.deps.Archiver.ArchiveLead(ctx, rec)
			s.deps.Metrics.ObserveSecondaryWrite("archive", err)
			if err != nil {
				logger.Warn("lead archive failed", "error", err)
			}
		})
	}
}

func (s *Service) observeReport(report notify.Report) {
	status := func(sent bool, err error) string {
		switch {
		case sent:
			return "sent"
		case errors.Is(err, notify.ErrDeliveryDisabled):
			return "disabled"
		case err != nil:
			return "failed"
		default:
			return "skipped"
		}
	}
	s.deps.Metrics.ObserveNotification("admin", status(report.AdminSent, report.AdminErr))
	s.deps.Metrics.ObserveNotification("ack", status(report.AckSent, report.AckErr))
}

func (s *Service) analyticsEvent(rec *leads.Record, meta leads.RequestMeta) analytics.Event {
	pageURL := s.opts.SiteURL + "/contact/"
	if u, err := url.Parse(meta.Referer); err == nil && u.Scheme != "" && u.Host != "" {
		pageURL = meta.Referer
	}

	props := map[string]string{"ticket": rec.Ticket}
	attr := rec.Attribution()
	for key, val := range map[string]string{
		"utm_source":   attr.Source,
		"utm_medium":   attr.Medium,
		"utm_campaign": attr.Campaign,
		"utm_term":     attr.Term,
		"utm_content":  attr.Content,
	} {
		if val != "" {
			props[key] = val
		}
	}

	return analytics.Event{
		Name:      analytics.EventContactSubmitted,
		URL:       pageURL,
		Referrer:  meta.Referer,
		Props:     props,
		UserAgent: meta.UserAgent,
		ClientIP:  meta.ClientIP,
	}
}

// Lookup returns the stored record for ticket. Tickets that are not UUIDs
// are reported as not found without touching the store.
func (s *Service) Lookup(ctx context.Context, ticket string) (*leads.Record, error) {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return nil, rejected(ReasonTicketRequired, http.StatusBadRequest, nil)
	}
	if _, err := uuid.Parse(ticket); err != nil {
		return nil, rejected(ReasonNotFound, http.StatusNotFound, leads.ErrNotFound)
	}

	rec, err := s.deps.Records.Get(ctx, ticket)
	if errors.Is(err, leads.ErrNotFound) {
		return nil, rejected(ReasonNotFound, http.StatusNotFound, err)
	}
	if err != nil {
		s.logger.Error("lead lookup failed", "ticket", ticket, "error", err)
		return nil, rejected(ReasonStorageFailure, http.StatusInternalServerError, err)
	}
	return rec, nil
}

// Recent lists the newest tickets from the time index.
func (s *Service) Recent(ctx context.Context, limit int) ([]leads.IndexEntry, error) {
	if s.deps.Index == nil {
		return []leads.IndexEntry{}, nil
	}
	return s.deps.Index.ListRecent(ctx, limit)
}
