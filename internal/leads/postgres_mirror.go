package leads

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresMirror copies accepted records into the contact_leads table for reporting.
// It is a secondary sink: the primary RecordStore remains the source of truth.
type PostgresMirror struct {
	db execer
}

func NewPostgresMirror(pool *pgxpool.Pool) *PostgresMirror {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresMirror{db: pool}
}

func newPostgresMirrorWithExec(db execer) *PostgresMirror {
	if db == nil {
		panic("leads: exec required")
	}
	return &PostgresMirror{db: db}
}

// Mirror inserts rec, ignoring a ticket that was already mirrored.
// It reports whether a row was written.
func (m *PostgresMirror) Mirror(ctx context.Context, rec *Record) (bool, error) {
	submittedAt, err := rec.SubmittedTime()
	if err != nil {
		return false, fmt.Errorf("leads: mirror submitted_at: %w", err)
	}
	query := `
		INSERT INTO contact_leads (
			ticket, name, email, company, website, message,
			user_agent, client_ip, referer_url,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (ticket) DO NOTHING
	`
	ct, err := m.db.Exec(ctx, query,
		rec.Ticket, rec.Name, rec.Email, rec.Company, rec.Website, rec.Message,
		rec.UserAgent, rec.ClientIP, rec.RefererURL,
		rec.UTMSource, rec.UTMMedium, rec.UTMCampaign, rec.UTMTerm, rec.UTMContent,
		submittedAt,
	)
	if err != nil {
		return false, fmt.Errorf("leads: mirror insert: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
