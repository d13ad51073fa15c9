package action

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/pkg/fivetran"
)

// --- Fivetran mock ---

type mockConnector struct {
	mock.Mock
}

func (m *mockConnector) Details(ctx context.Context) (*fivetran.Connector, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fivetran.Connector), args.Error(1)
}

func (m *mockConnector) Status(ctx context.Context) (*fivetran.ConnectorStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fivetran.ConnectorStatus), args.Error(1)
}

func (m *mockConnector) Pause(ctx context.Context) (*fivetran.Connector, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fivetran.Connector), args.Error(1)
}

func (m *mockConnector) Resume(ctx context.Context) (*fivetran.Connector, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fivetran.Connector), args.Error(1)
}

func (m *mockConnector) TriggerSync(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Quarantiner mock ---

type mockQuarantiner struct {
	mock.Mock
}

func (m *mockQuarantiner) QuarantineTable() string {
	return m.Called().String(0)
}

func (m *mockQuarantiner) EnsureQuarantineTable(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockQuarantiner) CopyRowsByID(ctx context.Context, ids []string, reason string) (int64, error) {
	args := m.Called(ctx, ids, reason)
	return args.Get(0).(int64), args.Error(1)
}

// --- Notifier mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Name() string { return "mock" }

func (m *mockNotifier) Dispatch(ctx context.Context, alert model.AlertPayload) error {
	return m.Called(ctx, alert).Error(0)
}
