package mocks

import (
	"context"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockNodeHandler is a mock implementation of protocol.NodeHandler.
type MockNodeHandler struct {
	mock.Mock

	NodeKind models.NodeKind
}

var _ protocol.NodeHandler = (*MockNodeHandler)(nil)

func (m *MockNodeHandler) Kind() models.NodeKind {
	return m.NodeKind
}

func (m *MockNodeHandler) Process(ctx context.Context, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	args := m.Called(ctx, node, record)

	return args.Get(0).(protocol.Outcome), args.Error(1)
}
