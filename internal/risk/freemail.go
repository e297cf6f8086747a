package risk

import "strings"

// freeEmailProviders covers common free and disposable mailbox
// domains. An organization reachable only through one of these has no
// verifiable mail infrastructure of its own.
var freeEmailProviders = map[string]struct{}{
	"gmail.com":         {},
	"yahoo.com":         {},
	"yahoo.fr":          {},
	"hotmail.com":       {},
	"hotmail.fr":        {},
	"outlook.com":       {},
	"outlook.fr":        {},
	"live.com":          {},
	"aol.com":           {},
	"mail.com":          {},
	"protonmail.com":    {},
	"icloud.com":        {},
	"yandex.com":        {},
	"zoho.com":          {},
	"gmx.com":           {},
	"gmx.fr":            {},
	"orange.fr":         {},
	"free.fr":           {},
	"laposte.net":       {},
	"wanadoo.fr":        {},
	"sfr.fr":            {},
	"bbox.fr":           {},
	"temp-mail.org":     {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"10minutemail.com":  {},
	"throwaway.email":   {},
}

// IsFreeEmailProvider reports whether domain belongs to the static
// free/disposable provider set.
func IsFreeEmailProvider(domain string) bool {
	_, ok := freeEmailProviders[strings.ToLower(domain)]
	return ok
}

// EmailDomain extracts the lowercased domain part of an email
// address, or "" when the input is not an address.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
