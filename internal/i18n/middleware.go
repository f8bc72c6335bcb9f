package i18n

import "net/http"

// Middleware picks the language of every request: a "lang" query parameter,
// then lang, then the browser's Accept-Language.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if q := r.URL.Query().Get("lang"); q != "" {
				prefs = append(prefs, q)
			}
			if lang != "" {
				prefs = append(prefs, lang)
			}
			if al := r.Header.Get("Accept-Language"); al != "" {
				prefs = append(prefs, al)
			}
			chosen := Match(prefs...)
			w.Header().Set("Content-Language", chosen)
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), NewLocalizer(chosen))))
		})
	}
}
