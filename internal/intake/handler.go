package intake

import (
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// MaxBodyBytes caps a submission body.
const MaxBodyBytes = 64 << 10

// TokenField is the form field the Turnstile widget populates.
const TokenField = "cf-turnstile-response"

// HandlerConfig controls request parsing and the success redirect.
type HandlerConfig struct {
	AcceptJSON       bool
	ConfirmationPath string
}

// Handler exposes the intake pipeline over HTTP.
type Handler struct {
	svc              *Service
	acceptJSON       bool
	confirmation     *url.URL
	logger           *logging.Logger
}

func NewHandler(svc *Service, cfg HandlerConfig, logger *logging.Logger) *Handler {
	if svc == nil {
		panic("intake: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	confirmation, err := url.Parse(strings.TrimSpace(cfg.ConfirmationPath))
	if err != nil || confirmation.String() == "" {
		if err != nil {
			logger.Warn("invalid confirmation path, using default", "path", cfg.ConfirmationPath, "error", err)
		}
		confirmation = &url.URL{Path: defaultConfirmationPath}
	}
	return &Handler{
		svc:          svc,
		acceptJSON:   cfg.AcceptJSON,
		confirmation: confirmation,
		logger:       logger,
	}
}

const defaultConfirmationPath = "/contact/thanks/"

// confirmationURL adds the ticket to the confirmation page, keeping any query
// the configured path already carries.
func (h *Handler) confirmationURL(ticket string) string {
	u := *h.confirmation
	q := u.Query()
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()
	return u.String()
}

type jsonSubmission struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Website   string `json:"website"`
	Message   string `json:"message"`
	Token     string `json:"token"`
	Turnstile string `json:"cf-turnstile-response"`
}

// Submit handles POST /api/contact and answers 303 to the confirmation page.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sub, failure := h.parseSubmission(w, r)
	if failure != nil {
		h.svc.deps.Metrics.ObserveSubmission(string(failure.State), failure.Reason)
		writeFailure(w, failure)
		return
	}

	rec, err := h.svc.Submit(r.Context(), sub, requestMeta(r))
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{State: StateRejected, Reason: ReasonStorageFailure, Status: http.StatusInternalServerError, Err: err}
		}
		writeFailure(w, f)
		return
	}

	w.Header().Set("Location", h.confirmationURL(rec.Ticket))
	w.WriteHeader(http.StatusSeeOther)
}

// Lookup handles GET /api/contact?ticket=<id>.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	h.writeRecord(w, r, r.URL.Query().Get("ticket"))
}

// LookupTicket serves a record for a ticket taken from the route.
func (h *Handler) LookupTicket(w http.ResponseWriter, r *http.Request, ticket string) {
	h.writeRecord(w, r, ticket)
}

func (h *Handler) writeRecord(w http.ResponseWriter, r *http.Request, ticket string) {
	rec, err := h.svc.Lookup(r.Context(), ticket)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = rejected(ReasonStorageFailure, http.StatusInternalServerError, err)
		}
		writeFailure(w, f)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) parseSubmission(w http.ResponseWriter, r *http.Request) (leads.Submission, *Failure) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return leads.Submission{}, rejected(ReasonBadRequest, http.StatusBadRequest, err)
		}
		form := r.PostForm
		return leads.Submission{
			Name:    form.Get("name"),
			Email:   form.Get("email"),
			Company: form.Get("company"),
			Website: form.Get("website"),
			Message: form.Get("message"),
			Token:   form.Get(TokenField),
		}, nil

	case mediaType == "application/json" && h.acceptJSON:
		var body jsonSubmission
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err := dec.Decode(&body); err != nil {
			return leads.Submission{}, rejected(ReasonBadRequest, http.StatusBadRequest, err)
		}
		token := body.Turnstile
		if strings.TrimSpace(token) == "" {
			token = body.Token
		}
		return leads.Submission{
			Name:    body.Name,
			Email:   body.Email,
			Company: body.Company,
			Website: body.Website,
			Message: body.Message,
			Token:   token,
		}, nil

	default:
		return leads.Submission{}, rejected(ReasonBadContentType, http.StatusUnsupportedMediaType, nil)
	}
}

func requestMeta(r *http.Request) leads.RequestMeta {
	return leads.RequestMeta{
		UserAgent: r.UserAgent(),
		ClientIP:  clientIP(r),
		Referer:   r.Referer(),
	}
}

// clientIP reads RemoteAddr only. Proxy headers are folded into it by the
// router middleware that is configured to trust them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}

type errorBody struct {
	OK    bool     `json:"ok"`
	Error string   `json:"error"`
	Codes []string `json:"codes,omitempty"`
}

func writeFailure(w http.ResponseWriter, f *Failure) {
	writeJSON(w, f.Status, errorBody{OK: false, Error: f.Reason, Codes: f.Codes})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
