package mid

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ardanlabs/merklechain/business/web/errs"
	"github.com/ardanlabs/merklechain/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the request level collectors shared by the middleware.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	errors   prometheus.Counter
	panics   prometheus.Counter
}

// NewHTTPMetrics registers the request collectors with the registerer. A nil
// registerer leaves the collectors unregistered, which is handy in tests.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)

	return &HTTPMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "merklechain_http_requests_total",
			Help: "Number of requests handled by the node API.",
		}, []string{"method", "status"}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "merklechain_http_errors_total",
			Help: "Number of requests that returned an error.",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Name: "merklechain_http_panics_total",
			Help: "Number of handler panics recovered.",
		}),
	}
}

func (m *HTTPMetrics) panic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}

// Metrics updates program counters.
func Metrics(m *HTTPMetrics) web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			if m == nil {
				return err
			}

			var status int
			if v, verr := web.GetValues(ctx); verr == nil {
				status = v.StatusCode
			}

			// Errors have not been written yet at this point in the chain.
			if err != nil {
				_, status = errs.ToResponse(err)
				m.errors.Inc()
			}

			m.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()

			// The error is returned so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
