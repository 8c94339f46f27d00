package i18n

import "net/http"

// LangQuery overrides Accept-Language when present on a request.
const LangQuery = "lang"

// Middleware injects a localizer into every request context. The language
// is negotiated from the ?lang= parameter and the Accept-Language header,
// falling back to the bundle default.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := Match(r.URL.Query().Get(LangQuery), r.Header.Get("Accept-Language"))
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
