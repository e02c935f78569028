package network

import (
	"net"
	"net/http"
	"strings"
)

// ClientAddress определяет адрес клиента для политики "один клиент на адрес".
// За прокси берётся первый элемент X-Forwarded-For, затем поле for= заголовка Forwarded.
func ClientAddress(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}

		// Forwarded: by=<identifier>;for=<identifier>;host=<host>;proto=<http|https>
		if fwd := r.Header.Get("Forwarded"); fwd != "" {
			first := strings.Split(fwd, ",")[0]
			for _, directive := range strings.Split(first, ";") {
				directive = strings.TrimSpace(directive)
				if strings.HasPrefix(strings.ToLower(directive), "for=") {
					return strings.Trim(directive[len("for="):], `"`)
				}
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
