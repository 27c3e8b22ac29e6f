package link

import (
	"context"

	"github.com/andrewwphillips/eggclient/internal/metrics"
	"github.com/andrewwphillips/eggclient/internal/operation"
)

// Transport names used in logs and as the metrics label
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// Split returns the terminal handler that sends subscriptions over ws and everything else
// over http. A nil ws means there is no persistent transport (eg when rendering a page on
// the server) so subscriptions go over http too.
func Split(http, ws Handler, m *metrics.Metrics) Handler {
	return HandlerFunc(func(ctx context.Context, op *operation.Operation) <-chan *operation.Result {
		if Route(op.Kind, ws != nil) == TransportWS {
			m.Operation(TransportWS)
			return ws.Execute(ctx, op)
		}
		m.Operation(TransportHTTP)
		return http.Execute(ctx, op)
	})
}

// Route decides which transport an operation of the given kind uses
func Route(kind operation.Kind, wsAvailable bool) string {
	if kind == operation.Subscription && wsAvailable {
		return TransportWS
	}
	return TransportHTTP
}
