package metrics

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/application/common"
)

// PrometheusMiddleware records duration and outcome of every mediator request.
// Request names are simplified to the bare type name, so
// "*command.HandleChatMessage" becomes "HandleChatMessage".
func PrometheusMiddleware(collector *RequestMetricsCollector) common.Middleware {
	return func(ctx context.Context, request common.Request, next common.HandlerFunc) (common.Response, error) {
		if collector == nil {
			return next(ctx, request)
		}

		start := time.Now()
		response, err := next(ctx, request)
		collector.RecordRequest(requestName(request), time.Since(start).Seconds(), err == nil)
		return response, err
	}
}

func requestName(request common.Request) string {
	if request == nil {
		return "Unknown"
	}
	fullName := strings.TrimPrefix(reflect.TypeOf(request).String(), "*")
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}
