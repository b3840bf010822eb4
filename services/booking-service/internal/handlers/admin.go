package handlers

import (
	"crypto/subtle"
	"html/template"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminKey guards the ledger dump. The configured value is either the plain key or its bcrypt hash.
type AdminKey struct {
	plain []byte
	hash  []byte
}

func NewAdminKey(configured string) *AdminKey {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return &AdminKey{}
	}
	if isBcryptHash(configured) {
		return &AdminKey{hash: []byte(configured)}
	}
	return &AdminKey{plain: []byte(configured)}
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// Match reports whether candidate is the admin key. An unconfigured key matches nothing.
func (k *AdminKey) Match(candidate string) bool {
	if k == nil || candidate == "" {
		return false
	}
	if k.hash != nil {
		return bcrypt.CompareHashAndPassword(k.hash, []byte(candidate)) == nil
	}
	if k.plain == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.plain, []byte(candidate)) == 1
}

var adminPage = template.Must(template.New("reservas").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="utf-8"><title>Reservas</title></head>
<body>
<h1>Reservas ({{len .}})</h1>
<table border="1" cellpadding="4">
<tr><th>Fecha</th><th>Hora</th><th>Nombre</th><th>Email</th><th>Servicio</th><th>Creada</th></tr>
{{range .}}<tr><td>{{.Date}}</td><td>{{.Time}}</td><td>{{.Name}}</td><td>{{.Email}}</td><td>{{.Service}}</td><td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td></tr>
{{end}}</table>
</body>
</html>
`))

func (h *BookingHandler) AdminReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.adminKey.Match(r.URL.Query().Get("key")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	reservations, err := h.svc.Reservations(r.Context())
	if err != nil {
		h.logger.Error("admin: list reservations failed", "err", err)
		http.Error(w, "failed to load reservations", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := adminPage.Execute(w, reservations); err != nil {
		h.logger.Error("admin: render failed", "err", err)
	}
}
