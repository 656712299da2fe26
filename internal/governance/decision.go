package governance

import (
	"net/http"

	"go-request-guard/internal/csrf"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/pkg/apierror"
)

// Decision is the facade's verdict for one request. Headers and Cookies are
// meant for the response whether or not the request was allowed.
type Decision struct {
	Allowed   bool
	Status    int
	Code      string
	Reason    string
	Headers   http.Header
	Cookies   []*http.Cookie
	CSRF      *csrf.Token
	RateLimit *ratelimit.Result
}

func (d *Decision) refuse(status int, code string, reason string) {
	d.Allowed = false
	d.Status = status
	d.Code = code
	d.Reason = reason
}

// Apply copies the decision's headers and cookies onto w. It never writes a
// status or body.
func (d Decision) Apply(w http.ResponseWriter) {
	header := w.Header()
	for name, values := range d.Headers {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	for _, cookie := range d.Cookies {
		http.SetCookie(w, cookie)
	}
}

// Err renders a denial as an API error. It returns nil for allowed requests.
func (d Decision) Err() *apierror.APIError {
	if d.Allowed {
		return nil
	}
	return apierror.New(d.Code, d.Reason, "", d.Status)
}
