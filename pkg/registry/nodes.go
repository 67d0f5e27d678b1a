package registry

import (
	"log/slog"
	"net/http"

	"github.com/dukex/wayflow/pkg/conditions"
	"github.com/dukex/wayflow/pkg/nodes/action"
	"github.com/dukex/wayflow/pkg/nodes/decision"
	"github.com/dukex/wayflow/pkg/nodes/form"
	"github.com/dukex/wayflow/pkg/nodes/trigger"
)

// RegisterDefaultHandlers registers the built-in handler of every node kind.
func (r *Registry) RegisterDefaultHandlers(evaluator conditions.Evaluator, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	r.Register(trigger.NewHandler())
	r.Register(form.NewHandler())
	r.Register(action.NewHandler(r.logger.With(slog.String("module", "action")), client))
	r.Register(decision.NewHandler(evaluator))
}
