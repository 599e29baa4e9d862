package httpmw

import "net/http"

// Chain wraps h in stages, outermost first. Nil stages are skipped so
// optional stages (metrics) can be left unset.
func Chain(h http.Handler, stages ...func(http.Handler) http.Handler) http.Handler {
	for i := len(stages) - 1; i >= 0; i-- {
		if stage := stages[i]; stage != nil {
			h = stage(h)
		}
	}
	return h
}
