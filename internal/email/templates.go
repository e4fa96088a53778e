package email

import (
	"bytes"
	"fmt"
	"html/template"
)

type RequestReceived struct {
	RecyclerName     string
	OwnerName        string
	PostID           string
	UserAddress      string
	ProductCount     int
	AISuggestedTotal float64
}

type RequestAnswered struct {
	OwnerName  string
	ShopName   string
	PostID     string
	Accepted   bool
	FinalPrice *float64
}

type PriceFinalized struct {
	Name        string
	PostID      string
	Price       float64
	FinalizedBy string
}

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("₹%.2f", v) },
	"short": shortID,
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2e7d32; padding: 24px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">{{template "title" .}}</h1>
	</div>
	<div style="background: #fff; padding: 24px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		{{template "content" .}}
		<p style="color: #888; font-size: 12px; margin-top: 32px;">E-Waste Exchange</p>
	</div>
</body>
</html>{{end}}`

var pages = map[string]string{
	"request_received": `{{define "title"}}New pickup request{{end}}
{{define "content"}}
<p>Hello {{.RecyclerName}},</p>
<p>{{if .OwnerName}}{{.OwnerName}}{{else}}A user{{end}} asked you to collect {{.ProductCount}} item(s) from post <code>{{short .PostID}}</code>.</p>
<p>Pickup address: {{.UserAddress}}</p>
<p>AI suggested total: <strong>{{money .AISuggestedTotal}}</strong></p>
<p>Open your inbox to accept or reject it.</p>
{{end}}`,

	"request_answered": `{{define "title"}}{{if .Accepted}}Request accepted{{else}}Request declined{{end}}{{end}}
{{define "content"}}
<p>Hello {{.OwnerName}},</p>
{{if .Accepted}}
<p>{{.ShopName}} accepted your request for post <code>{{short .PostID}}</code>.</p>
{{if .FinalPrice}}<p>Final price: <strong>{{money (deref .FinalPrice)}}</strong></p>{{else}}<p>You can now negotiate the price.</p>{{end}}
{{else}}
<p>{{.ShopName}} declined your request for post <code>{{short .PostID}}</code>. You can send it to another recycler.</p>
{{end}}
{{end}}`,

	"price_finalized": `{{define "title"}}Price finalized{{end}}
{{define "content"}}
<p>Hello {{.Name}},</p>
<p>The price for post <code>{{short .PostID}}</code> was finalized at <strong>{{money .Price}}</strong> by the {{.FinalizedBy}}.</p>
{{end}}`,
}

var templates = buildTemplates()

func buildTemplates() map[string]*template.Template {
	base := template.Must(template.New("layout").Funcs(funcs).Funcs(template.FuncMap{
		"deref": func(v *float64) float64 { return *v },
	}).Parse(layout))

	out := make(map[string]*template.Template, len(pages))
	for name, page := range pages {
		out[name] = template.Must(template.Must(base.Clone()).Parse(page))
	}
	return out
}

func render(name string, data any) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
