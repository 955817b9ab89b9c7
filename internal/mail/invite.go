package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Invite is a shared-skill invitation addressed to the recipient.
type Invite struct {
	RecipientEmail  string
	RecipientName   string
	RecipientAIName string
	OwnerName       string
	SkillName       string
	AcceptURL       string
}

func (inv Invite) Subject() string {
	return fmt.Sprintf(`%s shared "%s" skill with your AI`, inv.OwnerName, inv.SkillName)
}

func (inv Invite) aiName() string {
	if inv.RecipientAIName == "" {
		return "your AI"
	}
	return inv.RecipientAIName
}

var inviteTemplate = template.Must(template.New("invite").Parse(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<h1 style="color: #333; font-size: 24px;">{{.OwnerName}} shared a skill with you</h1>
<p style="color: #666; font-size: 16px;">{{if .RecipientName}}Hi {{.RecipientName}},{{else}}Hello,{{end}}</p>
<p style="color: #666; font-size: 16px;"><strong>{{.OwnerName}}</strong> is sharing the <strong>"{{.SkillName}}"</strong> skill and its data with your AI, {{.AIName}}.</p>
<p style="color: #666; font-size: 16px;">Click the button below to accept this invitation and start syncing this skill:</p>
<a href="{{.AcceptURL}}" style="display: inline-block; background-color: #000; color: #fff; text-decoration: none; padding: 14px 28px; border-radius: 6px; font-weight: 600;">Accept Invitation</a>
<p style="color: #999; font-size: 14px;">Or copy and paste this link into your browser:<br/><a href="{{.AcceptURL}}" style="color: #666;">{{.AcceptURL}}</a></p>
<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;" />
<p style="color: #999; font-size: 12px;">This is an automated message from Mio. If you didn't expect this invitation, you can safely ignore this email.</p>
</div>
`))

// render returns the HTML body and a markdown plain-text alternative.
func (inv Invite) render() (string, string, error) {
	var buf bytes.Buffer
	err := inviteTemplate.Execute(&buf, struct {
		Invite
		AIName string
	}{inv, inv.aiName()})
	if err != nil {
		return "", "", fmt.Errorf("render invite: %w", err)
	}
	html := buf.String()
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", "", fmt.Errorf("convert invite to text: %w", err)
	}
	return html, strings.TrimSpace(text), nil
}
