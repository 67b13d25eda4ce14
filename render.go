package siteauth

import (
	"html/template"
	"io"
	"net/http"
)

// Page names a renderable page
type Page string

const (
	PageSignIn        Page = "signin"
	PageSignOut       Page = "signout"
	PageError         Page = "error"
	PageVerifyRequest Page = "verify-request"
)

// PageData is everything a page may show
type PageData struct {
	SiteURL     string
	BasePath    string
	CSRFToken   string
	CallbackURL string
	Providers   []*Provider
	Error       ErrorCode
	Message     string
	CSRFFailed  bool
}

// Renderer turns a page into markup. It is only used for informational
// pages, never on the sign-in decision paths.
type Renderer interface {
	Render(w io.Writer, page Page, data PageData) error
}

// ErrorMessages are the default user-facing texts for each code
var ErrorMessages = map[ErrorCode]string{
	ErrCodeSignin:             "Try signing in with a different account.",
	ErrCodeOAuthSignin:        "Try signing in with a different account.",
	ErrCodeOAuthCallback:      "Try signing in with a different account.",
	ErrCodeOAuthCreateAccount: "Try signing in with a different account.",
	ErrCodeEmailCreateAccount: "Try signing in with a different account.",
	ErrCodeCallback:           "Try signing in with a different account.",
	ErrCodeAccountNotLinked:   "To confirm your identity, sign in with the same account you used originally.",
	ErrCodeEmailSignin:        "Check your email address.",
	ErrCodeEmailRequired:      "Enter an email address to sign in.",
	ErrCodeVerification:       "The sign in link is no longer valid. It may have been used already or it may have expired.",
	ErrCodeConfiguration:      "There is a problem with the server configuration. Check the server logs for more information.",
	ErrCodeUnknown:            "Unable to sign in.",
}

const pageTemplates = `
{{define "head"}}<!DOCTYPE html><html><head><meta charset="utf-8"><title>{{.}}</title></head><body>{{end}}
{{define "foot"}}</body></html>{{end}}

{{define "signin"}}{{template "head" "Sign in"}}
{{if .Error}}<p class="error">{{.Message}}</p>{{end}}
{{if .CSRFFailed}}<p class="error">Your session expired, please try again.</p>{{end}}
{{range .Providers}}
<div class="provider">
{{if eq .Type "email"}}
<form action="{{.SigninURL}}" method="POST">
<input type="hidden" name="csrfToken" value="{{$.CSRFToken}}">
<input type="hidden" name="callbackUrl" value="{{$.CallbackURL}}">
<label>Email <input type="email" name="email" required></label>
<button type="submit">Sign in with {{.Name}}</button>
</form>
{{else if eq .Type "credentials"}}
<form action="{{.CallbackURL}}" method="POST">
<input type="hidden" name="csrfToken" value="{{$.CSRFToken}}">
<input type="hidden" name="callbackUrl" value="{{$.CallbackURL}}">
{{range .Fields}}<label>{{.Label}} <input name="{{.Name}}" type="{{.Type}}" placeholder="{{.Placeholder}}"></label>{{end}}
<button type="submit">Sign in with {{.Name}}</button>
</form>
{{else}}
<form action="{{.SigninURL}}" method="POST">
<input type="hidden" name="csrfToken" value="{{$.CSRFToken}}">
<input type="hidden" name="callbackUrl" value="{{$.CallbackURL}}">
<button type="submit">Sign in with {{.Name}}</button>
</form>
{{end}}
</div>
{{end}}
{{template "foot"}}{{end}}

{{define "signout"}}{{template "head" "Sign out"}}
<form action="{{.BasePath}}/signout" method="POST">
<input type="hidden" name="csrfToken" value="{{.CSRFToken}}">
<input type="hidden" name="callbackUrl" value="{{.CallbackURL}}">
<button type="submit">Sign out</button>
</form>
{{template "foot"}}{{end}}

{{define "error"}}{{template "head" "Error"}}
<h1>Unable to sign in</h1>
<p>{{.Message}}</p>
<p><a href="{{.BasePath}}/signin">Sign in</a></p>
{{template "foot"}}{{end}}

{{define "verify-request"}}{{template "head" "Check your email"}}
<h1>Check your email</h1>
<p>A sign in link has been sent to your email address.</p>
<p><a href="{{.SiteURL}}">{{.SiteURL}}</a></p>
{{template "foot"}}{{end}}
`

// TemplateRenderer renders the built-in html/template pages
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses the built-in pages
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{tmpl: template.Must(template.New("pages").Parse(pageTemplates))}
}

func (t *TemplateRenderer) Render(w io.Writer, page Page, data PageData) error {
	return t.tmpl.ExecuteTemplate(w, string(page), data)
}

func (a *SiteAuth) pageData(r *http.Request) PageData {
	return PageData{
		SiteURL:     a.cfg.BaseURL,
		BasePath:    a.cfg.BasePath,
		CSRFToken:   stateFrom(r).csrf.Value,
		CallbackURL: a.callbackURL(r),
	}
}

func (a *SiteAuth) render(w http.ResponseWriter, status int, page Page, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := a.cfg.Renderer.Render(w, page, data); err != nil {
		a.logger.Error("rendering page", "page", page, "error", err)
	}
}

// redirectCustom sends the request to a configured custom page, keeping its query
func redirectCustom(w http.ResponseWriter, r *http.Request, target string) {
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *SiteAuth) onSigninPage(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Pages.SignIn != "" {
		redirectCustom(w, r, a.cfg.Pages.SignIn)
		return
	}
	data := a.pageData(r)
	data.Providers = a.registry.List()
	if code := r.URL.Query().Get("error"); code != "" {
		data.Error = ParseErrorCode(code)
		data.Message = ErrorMessages[data.Error]
	}
	data.CSRFFailed = r.URL.Query().Get("csrf") == "true"
	a.render(w, http.StatusOK, PageSignIn, data)
}

func (a *SiteAuth) onSignoutPage(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Pages.SignOut != "" {
		redirectCustom(w, r, a.cfg.Pages.SignOut)
		return
	}
	a.render(w, http.StatusOK, PageSignOut, a.pageData(r))
}

func (a *SiteAuth) onVerifyRequestPage(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Pages.VerifyRequest != "" {
		redirectCustom(w, r, a.cfg.Pages.VerifyRequest)
		return
	}
	a.render(w, http.StatusOK, PageVerifyRequest, a.pageData(r))
}

func (a *SiteAuth) onErrorPage(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Pages.Error != "" {
		redirectCustom(w, r, a.cfg.Pages.Error)
		return
	}
	data := a.pageData(r)
	data.Error = ParseErrorCode(r.URL.Query().Get("error"))
	data.Message = ErrorMessages[data.Error]
	status := http.StatusOK
	switch data.Error {
	case ErrCodeConfiguration:
		status = http.StatusInternalServerError
	case ErrCodeVerification:
		status = http.StatusForbidden
	}
	a.render(w, status, PageError, data)
}
