package leads

import (
	"net/url"
	"strings"
	"time"
)

// SubmittedAtLayout is the fixed, machine-parseable format of Record.SubmittedAt.
const SubmittedAtLayout = "2006-01-02T15:04:05.000Z"

// timeIndexLayout orders secondary index keys lexicographically by time.
const timeIndexLayout = "20060102T150405Z"

// Record is one accepted contact submission. It is written once and never updated.
type Record struct {
	Ticket      string `json:"ticket" dynamodbav:"ticket"`
	Name        string `json:"name" dynamodbav:"name"`
	Email       string `json:"email" dynamodbav:"email"`
	Company     string `json:"company" dynamodbav:"company"`
	Website     string `json:"website" dynamodbav:"website"`
	Message     string `json:"message" dynamodbav:"message"`
	UserAgent   string `json:"user_agent" dynamodbav:"user_agent"`
	ClientIP    string `json:"client_ip" dynamodbav:"client_ip"`
	RefererURL  string `json:"referer_url" dynamodbav:"referer_url"`
	SubmittedAt string `json:"submitted_at" dynamodbav:"submitted_at"`
	UTMSource   string `json:"utm_source" dynamodbav:"utm_source"`
	UTMMedium   string `json:"utm_medium" dynamodbav:"utm_medium"`
	UTMCampaign string `json:"utm_campaign" dynamodbav:"utm_campaign"`
	UTMTerm     string `json:"utm_term" dynamodbav:"utm_term"`
	UTMContent  string `json:"utm_content" dynamodbav:"utm_content"`
}

// Submission is the caller-supplied part of a contact request.
type Submission struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Company string `json:"company" validate:"max=200"`
	Website string `json:"website" validate:"max=500"`
	Message string `json:"message" validate:"required,max=10000"`
	Token   string `json:"-" validate:"-"`
}

// RequestMeta is captured from the transport layer, never from the body.
type RequestMeta struct {
	UserAgent string
	ClientIP  string
	Referer   string
}

// Attribution holds utm_* values taken from the referer query string.
type Attribution struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// NewRecord assembles the immutable record for an accepted submission.
// The client address is masked and UTM fields are filled only when captureUTM is set.
func NewRecord(ticket string, sub Submission, meta RequestMeta, now time.Time, captureUTM bool) *Record {
	rec := &Record{
		Ticket:      ticket,
		Name:        sub.Name,
		Email:       sub.Email,
		Company:     sub.Company,
		Website:     sub.Website,
		Message:     sub.Message,
		UserAgent:   meta.UserAgent,
		ClientIP:    MaskIP(meta.ClientIP),
		RefererURL:  meta.Referer,
		SubmittedAt: now.UTC().Format(SubmittedAtLayout),
	}
	if captureUTM {
		attr := ParseAttribution(meta.Referer)
		rec.UTMSource = attr.Source
		rec.UTMMedium = attr.Medium
		rec.UTMCampaign = attr.Campaign
		rec.UTMTerm = attr.Term
		rec.UTMContent = attr.Content
	}
	return rec
}

// SubmittedTime parses SubmittedAt.
func (r *Record) SubmittedTime() (time.Time, error) {
	return time.Parse(SubmittedAtLayout, r.SubmittedAt)
}

// ReplyAddress is the submitter's email trimmed for use as a mail address.
// Email itself stays as submitted.
func (r *Record) ReplyAddress() string {
	return strings.TrimSpace(r.Email)
}

// DisplayName is the trimmed submitter name used in mail headers.
func (r *Record) DisplayName() string {
	return strings.TrimSpace(r.Name)
}

// Attribution returns the stored utm_* values.
func (r *Record) Attribution() Attribution {
	return Attribution{
		Source:   r.UTMSource,
		Medium:   r.UTMMedium,
		Campaign: r.UTMCampaign,
		Term:     r.UTMTerm,
		Content:  r.UTMContent,
	}
}

// ParseAttribution reads utm_* parameters from an absolute referer URL.
// Anything that is not a well-formed absolute URL yields an empty Attribution.
func ParseAttribution(referer string) Attribution {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return Attribution{}
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Attribution{}
	}
	q := u.Query()
	return Attribution{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}

// IndexEntry is one row of the time-ordered secondary index.
type IndexEntry struct {
	Ticket      string    `json:"ticket"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func timeIndexSuffix(rec *Record) string {
	ts, err := rec.SubmittedTime()
	if err != nil {
		ts = time.Now().UTC()
	}
	return ts.UTC().Format(timeIndexLayout) + ":" + rec.Ticket
}

func parseTimeIndexSuffix(suffix string) (IndexEntry, bool) {
	stamp, ticket, ok := strings.Cut(suffix, ":")
	if !ok || ticket == "" {
		return IndexEntry{}, false
	}
	ts, err := time.Parse(timeIndexLayout, stamp)
	if err != nil {
		return IndexEntry{}, false
	}
	return IndexEntry{Ticket: ticket, SubmittedAt: ts}, true
}
