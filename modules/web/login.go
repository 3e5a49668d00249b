package web

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/a-h/templ"

	verp "github.com/tonyluong2025/verp-sub017"
)

func loginForm(c verp.Context, redirect, message string) *verp.Response {
	return verp.RenderComponent(http.StatusOK, loginPage(c.CSRFToken(), redirect, message, c.Tenant()))
}

// loginPage renders the login form. Every value is escaped.
func loginPage(csrf, redirect, message, tenant string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b bytes.Buffer
		b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Login</title></head><body><main>")
		b.WriteString("<form class=\"oe_login_form\" method=\"post\" action=\"" + verp.LoginPath + "\">")
		b.WriteString("<input type=\"hidden\" name=\"" + verp.CSRFField + "\" value=\"" + templ.EscapeString(csrf) + "\">")
		b.WriteString("<input type=\"hidden\" name=\"redirect\" value=\"" + templ.EscapeString(redirect) + "\">")
		if tenant != "" {
			b.WriteString("<p class=\"db\">" + templ.EscapeString(tenant) + "</p>")
		}
		if message != "" {
			b.WriteString("<p class=\"alert\" role=\"alert\">" + templ.EscapeString(message) + "</p>")
		}
		b.WriteString("<label for=\"login\">Email</label><input type=\"text\" id=\"login\" name=\"login\" required autofocus>")
		b.WriteString("<label for=\"password\">Password</label><input type=\"password\" id=\"password\" name=\"password\" required>")
		b.WriteString("<button type=\"submit\">Log in</button></form></main></body></html>\n")
		_, err := w.Write(b.Bytes())
		return err
	})
}
