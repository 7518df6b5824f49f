package transport

import (
	"context"
	"time"

	"github.com/beacondeck/realtime/telemetry/throughputstats"
	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) Disconnect(code CloseCode, reason string) error {
	args := m.Called(code, reason)
	return args.Error(0)
}

func (m *MockTransport) Send(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockTransport) ReadyState() ReadyState {
	args := m.Called()
	return args.Get(0).(ReadyState)
}

func (m *MockTransport) SetDelegate(delegate Delegate) {
	m.Called(delegate)
}

func (m *MockTransport) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(chan struct{})
}

func (m *MockTransport) Err() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) Stats() throughputstats.Digest {
	args := m.Called()
	return args.Get(0).(throughputstats.Digest)
}

type MockDelegate struct {
	mock.Mock
}

func (m *MockDelegate) OnOpen() {
	m.Called()
}

func (m *MockDelegate) OnMessage(message string) {
	m.Called(message)
}

func (m *MockDelegate) OnError(err error) {
	m.Called(err)
}

func (m *MockDelegate) OnClose(code CloseCode) {
	m.Called(code)
}

// DelegateEvent is one recorded delegate notification, in arrival order.
type DelegateEvent struct {
	Kind    string // "open", "message", "error" or "close"
	Message string
	Err     error
	Code    CloseCode
}

// RecordingDelegate captures every notification into a single ordered
// channel so tests can assert on callback ordering, not just occurrence.
type RecordingDelegate struct {
	Events chan DelegateEvent
}

func NewRecordingDelegate() *RecordingDelegate {
	return &RecordingDelegate{
		Events: make(chan DelegateEvent, 50),
	}
}

func (d *RecordingDelegate) OnOpen() {
	d.Events <- DelegateEvent{Kind: "open"}
}

func (d *RecordingDelegate) OnMessage(message string) {
	d.Events <- DelegateEvent{Kind: "message", Message: message}
}

func (d *RecordingDelegate) OnError(err error) {
	d.Events <- DelegateEvent{Kind: "error", Err: err}
}

func (d *RecordingDelegate) OnClose(code CloseCode) {
	d.Events <- DelegateEvent{Kind: "close", Code: code}
}

// Next returns the next recorded event, or false if none arrives in time.
func (d *RecordingDelegate) Next(timeout time.Duration) (DelegateEvent, bool) {
	select {
	case event := <-d.Events:
		return event, true
	case <-time.After(timeout):
		return DelegateEvent{}, false
	}
}
