package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"log"
	"net/http"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	pageTemplates = map[string]*template.Template{}
	jnlpTemplate  = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/launch.jnlp"))
)

func init() {
	for _, name := range []string{"launch", "view_results", "pass", "fail", "incomplete"} {
		pageTemplates[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
}

// pageURLs are the links every page and the JNLP file point at.
type pageURLs struct {
	Base     string
	CSS      string
	JNLP     string
	Jar      string
	Waiting  string
	Results  string
	Socket   string
	Relaunch string
}

func newPageURLs(base, sessionID string) pageURLs {
	socket := base
	switch {
	case strings.HasPrefix(socket, "https://"):
		socket = "wss://" + strings.TrimPrefix(socket, "https://")
	case strings.HasPrefix(socket, "http://"):
		socket = "ws://" + strings.TrimPrefix(socket, "http://")
	}
	return pageURLs{
		Base:     base,
		CSS:      base + "/pfi.css",
		JNLP:     base + "/" + sessionID + "/launch.jnlp",
		Jar:      base + "/orthobox-signed.jar",
		Waiting:  base + "/" + sessionID + "/view_results",
		Results:  base + "/" + sessionID + "/results",
		Socket:   socket + "/" + sessionID + "/ws",
		Relaunch: "/launch",
	}
}

// baseURL prefers the configured public URL over the one the request
// arrived on.
func baseURL(configured string, r *http.Request) string {
	if configured != "" {
		return configured
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func renderPage(w http.ResponseWriter, status int, name string, data interface{}) {
	tmpl, ok := pageTemplates[name]
	if !ok {
		log.Printf("missing template %q", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name+".html", data); err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
