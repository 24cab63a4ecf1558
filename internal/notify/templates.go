package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Kind selects the wording of a credential email.
type Kind string

const (
	KindInvite Kind = "INVITE"
	KindReset  Kind = "RESET"
)

// LinkData feeds the credential email templates.
type LinkData struct {
	Name     string
	Link     string
	TTLHours int
	Invite   bool
}

var htmlBody = htmltemplate.Must(htmltemplate.New("link").Parse(
	`<p>Olá{{if .Name}} {{.Name}}{{end}},</p>
<p>{{if .Invite}}Defina{{else}}Redefina{{end}} sua senha clicando no botão abaixo (expira em {{.TTLHours}} horas):</p>
<p><a href="{{.Link}}" style="background:#0B1220;color:#fff;padding:10px 16px;border-radius:8px;text-decoration:none">Definir senha</a></p>
<p>Se o botão não funcionar, copie e cole este link no navegador:<br>{{.Link}}</p>
`))

var textBody = texttemplate.Must(texttemplate.New("link").Parse(
	`Olá{{if .Name}} {{.Name}}{{end}},

{{if .Invite}}Defina{{else}}Redefina{{end}} sua senha pelo link abaixo (expira em {{.TTLHours}} horas):

{{.Link}}
`))

// Subject returns the subject line for kind.
func Subject(kind Kind) string {
	if kind == KindInvite {
		return "Bem-vindo! Defina sua senha"
	}
	return "Redefinição de senha"
}

// RenderLinkMessage builds the invite or reset email for to.
func RenderLinkMessage(kind Kind, to string, data LinkData) (Message, error) {
	data.Invite = kind == KindInvite
	data.Name = strings.TrimSpace(data.Name)
	var h, t bytes.Buffer
	if err := htmlBody.Execute(&h, data); err != nil {
		return Message{}, err
	}
	if err := textBody.Execute(&t, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: Subject(kind), HTML: h.String(), Text: t.String()}, nil
}
