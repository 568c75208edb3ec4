package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/incierge/incierge-intake/internal/leads"
)

const defaultFromName = "INCIERGE"

var adminBodyTmpl = template.Must(template.New("admin").Parse(`受付番号: {{.Ticket}}
Name: {{.Name}}
Email: {{.Email}}
Company: {{.Company}}
Website: {{.Website}}
Submitted: {{.SubmittedAt}}
IP: {{.ClientIP}}
Referer: {{.RefererURL}}
----
{{.Message}}
`))

var ackBodyTmpl = template.Must(template.New("ack").Parse(`{{.Rec.Name}} 様

{{.Site}} へのお問い合わせありがとうございます。以下の内容で受け付けました。担当より折り返しご連絡いたします。

受付番号: {{.Rec.Ticket}}

--- ご入力内容 ---
お名前: {{.Rec.Name}}
メール: {{.Rec.Email}}
会社名: {{.Rec.Company}}
HP: {{.Rec.Website}}
----
{{.Rec.Message}}

このメールにご返信いただければ、そのままやり取り可能です。
`))

func adminSubject(site, name string) string {
	return fmt.Sprintf("【%s】新しいお問い合わせ: %s", site, name)
}

func ackSubject(site string) string {
	return fmt.Sprintf("【%s】お問い合わせを受け付けました", site)
}

func renderAdminBody(rec *leads.Record) (string, error) {
	var buf bytes.Buffer
	if err := adminBodyTmpl.Execute(&buf, rec); err != nil {
		return "", fmt.Errorf("notify: render admin body: %w", err)
	}
	return buf.String(), nil
}

func renderAckBody(site string, rec *leads.Record) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Site string
		Rec  *leads.Record
	}{Site: site, Rec: rec}
	if err := ackBodyTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: render ack body: %w", err)
	}
	return buf.String(), nil
}
