package api

import (
	"html"
	"html/template"
	"net/http"

	"github.com/xbora/mio/internal/shares"
)

var acceptPage = template.Must(template.New("accept").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - Mio</title>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}<a href="{{.LinkURL}}">{{.LinkText}}</a>
</main>
</body>
</html>
`))

type page struct {
	Status     int
	Title      string
	Paragraphs []template.HTML
	LinkURL    string
	LinkText   string
}

func acceptPageFor(a shares.Acceptance) page {
	skill := html.EscapeString(a.SkillName)
	ai := html.EscapeString(a.AIName)
	goHome := func(status int, title, msg string) page {
		return page{Status: status, Title: title, Paragraphs: []template.HTML{template.HTML(msg)}, LinkURL: "/", LinkText: "Go Home"}
	}

	switch a.Outcome {
	case shares.OutcomeInvalid:
		return goHome(http.StatusBadRequest, "Invalid Invitation", "This invitation link is invalid or incomplete.")
	case shares.OutcomeNotFound:
		return goHome(http.StatusNotFound, "Invitation Not Found", "This invitation token is invalid or has expired.")
	case shares.OutcomeAlready:
		return page{
			Status: http.StatusOK,
			Title:  "Already Accepted",
			Paragraphs: []template.HTML{
				template.HTML("This skill share invitation for <strong>" + skill + "</strong> has already been accepted and is syncing with " + ai + "."),
			},
			LinkURL:  "/login",
			LinkText: "Log In to Your Account",
		}
	case shares.OutcomeAccepted:
		return page{
			Status: http.StatusOK,
			Title:  "Invitation Accepted!",
			Paragraphs: []template.HTML{
				template.HTML("You've successfully accepted the shared skill <strong>" + skill + "</strong>."),
				template.HTML("This skill and its data will now sync with your AI, " + ai + "."),
				"Click below to log in and start using your shared skill:",
			},
			LinkURL:  "/login",
			LinkText: "Log In to Your Account",
		}
	}
	return goHome(http.StatusInternalServerError, "Error", "Failed to accept the invitation. Please try again or contact support.")
}
