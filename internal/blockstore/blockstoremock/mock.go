// Package blockstoremock provides a go.uber.org/mock-based double of
// blockstore.Store, used by tests that need to simulate StoreIOError
// (spec §7) without a real backing store. Hand-maintained in the shape
// mockgen would produce, since the teacher depends on go.uber.org/mock
// directly (e.g. validator/validatorsmock) for exactly this kind of
// interface double rather than hand-rolled stubs.
package blockstoremock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/cid"
)

// MockStore is a mock of the blockstore.Store interface.
type MockStore struct {
	ctrl     *gomock.Controller
	recorder *MockStoreMockRecorder
}

// MockStoreMockRecorder is the recorder for MockStore.
type MockStoreMockRecorder struct {
	mock *MockStore
}

// NewMockStore returns a new mock ready to use.
func NewMockStore(ctrl *gomock.Controller) *MockStore {
	m := &MockStore{ctrl: ctrl}
	m.recorder = &MockStoreMockRecorder{m}
	return m
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockStore) EXPECT() *MockStoreMockRecorder {
	return m.recorder
}

func (m *MockStore) Put(ctx context.Context, c cid.CID, bytes []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Put", ctx, c, bytes)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockStoreMockRecorder) Put(ctx, c, bytes any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Put", reflect.TypeOf((*MockStore)(nil).Put), ctx, c, bytes)
}

func (m *MockStore) Get(ctx context.Context, c cid.CID) (blockstore.Block, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", ctx, c)
	ret0, _ := ret[0].(blockstore.Block)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) Get(ctx, c any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockStore)(nil).Get), ctx, c)
}

func (m *MockStore) Has(ctx context.Context, c cid.CID) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Has", ctx, c)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) Has(ctx, c any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Has", reflect.TypeOf((*MockStore)(nil).Has), ctx, c)
}

func (m *MockStore) Entries(ctx context.Context) ([]blockstore.Block, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Entries", ctx)
	ret0, _ := ret[0].([]blockstore.Block)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) Entries(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Entries", reflect.TypeOf((*MockStore)(nil).Entries), ctx)
}

var _ blockstore.Store = (*MockStore)(nil)
